package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// ArtifactStore uploads original receipt files under a decision- and
// identity-partitioned key scheme. Uploads happen only after the verdict is
// known, since the decision selects the key prefix.
type ArtifactStore struct {
	store  ObjectStore
	now    func() time.Time
	logger *zap.Logger
}

// NewArtifactStore creates an artifact store over the given object storage.
func NewArtifactStore(store ObjectStore, logger *zap.Logger) *ArtifactStore {
	return &ArtifactStore{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// Persist uploads the file and returns its addressable URL. Key scheme:
//
//	Reimbursement/{admin}/{DECISION}/{base}_{timestamp}_{user}.{ext}
//
// where admin and user are email identifiers with '@' and '.' stripped, the
// decision is uppercased and the timestamp is an ISO-8601 instant with
// separators removed.
func (a *ArtifactStore) Persist(ctx context.Context, filePath, originalName string, decision models.Decision, adminEmail, userEmail string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrArtifactMissing, filePath)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, filePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, filePath, err)
	}

	objectName := a.ObjectName(originalName, decision, adminEmail, userEmail)
	contentType := mime.TypeByExtension(filepath.Ext(originalName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := a.store.Upload(ctx, objectName, file, info.Size(), contentType); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	url := a.store.PublicURL(objectName)
	a.logger.Info("Artifact persisted",
		zap.String("object", objectName),
		zap.String("url", url))
	return url, nil
}

// ObjectName builds the storage key for one artifact.
func (a *ArtifactStore) ObjectName(originalName string, decision models.Decision, adminEmail, userEmail string) string {
	base := filepath.Base(originalName)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	timestamp := a.now().UTC().Format("20060102_150405")

	return fmt.Sprintf("Reimbursement/%s/%s/%s_%s_%s%s",
		NormalizeIdentifier(adminEmail),
		strings.ToUpper(string(decision)),
		name,
		timestamp,
		NormalizeIdentifier(userEmail),
		ext,
	)
}

// NormalizeIdentifier strips '@' and '.' from an email-derived identifier.
// Collision-tolerant but human-traceable in the bucket listing.
func NormalizeIdentifier(email string) string {
	email = strings.ReplaceAll(email, "@", "")
	return strings.ReplaceAll(email, ".", "")
}

// PolicyPrefix is where a group's policy documents live.
func PolicyPrefix(adminEmail string) string {
	return fmt.Sprintf("Reimbursement/%s/policies/", NormalizeIdentifier(adminEmail))
}
