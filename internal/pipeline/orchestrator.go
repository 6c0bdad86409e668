package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/extract"
	"github.com/midaslabs/reimburse/internal/models"
	"github.com/midaslabs/reimburse/internal/quota"
)

// Stages of one request, in order. Terminal states are Recorded,
// RejectedEarly (quota) and Failed.
const (
	StageReceived     = "Received"
	StageQuotaChecked = "QuotaChecked"
	StageExtracting   = "Extracting"
	StageDeciding     = "Deciding"
	StagePersisting   = "Persisting"
	StageRecorded     = "Recorded"
)

var (
	// ErrInvalidRole means the caller is not a plain user.
	ErrInvalidRole = errors.New("role must be 'user'")

	// ErrNoFiles means the request carried no receipt files.
	ErrNoFiles = errors.New("at least one receipt file is required")

	// ErrNoActiveGroup means no admin could be resolved for the caller.
	ErrNoActiveGroup = errors.New("no active group or admin found for user")
)

// ContentExtractor converts one file into normalized content.
type ContentExtractor interface {
	Extract(path, ext string) (models.ExtractedContent, error)
}

// ArchiveExpander unpacks a zip and extracts its members.
type ArchiveExpander interface {
	Expand(archivePath string) ([]models.ExtractedContent, error)
}

// PolicyResolver determines the active policy; it never fails.
type PolicyResolver interface {
	Resolve(ctx context.Context, userEmail, adminEmail string) models.Policy
}

// DecisionEngine judges one extracted item against the policy.
type DecisionEngine interface {
	Decide(ctx context.Context, details string, content models.ExtractedContent, policy models.Policy) (models.Verdict, error)
}

// QuotaTracker enforces request frequency limits.
type QuotaTracker interface {
	CheckAndReserve(ctx context.Context, userEmail, adminEmail string, policy models.Policy) (quota.Result, error)
	Commit(ctx context.Context, state models.QuotaState) error
}

// ArtifactPersister uploads one original file under the final verdict.
type ArtifactPersister interface {
	Persist(ctx context.Context, filePath, originalName string, decision models.Decision, adminEmail, userEmail string) (string, error)
}

// RecordWriter appends the completed run's record.
type RecordWriter interface {
	Create(ctx context.Context, record *models.ReimbursementRecord) error
}

// Request is one reimbursement submission with its resolved identity
// context. The pipeline trusts the identity; it only checks the role.
type Request struct {
	Role       string
	UserEmail  string
	AdminEmail string
	Details    string
	Files      []models.UploadedFile
}

// Result is the caller-facing outcome of a run. Status is Approved or
// Rejected; quota denials come back Rejected with the limit message so
// callers can tell "policy says no" from a system failure.
type Result struct {
	Status         models.Decision `json:"status"`
	Feedback       string          `json:"feedback"`
	ProcessedFiles int             `json:"processed_files"`
	ArtifactURLs   []string        `json:"uploaded_files"`
}

// Orchestrator composes extraction, policy resolution, decisioning, quota
// and artifact persistence into one pipeline run per request.
type Orchestrator struct {
	extractor ContentExtractor
	expander  ArchiveExpander
	policies  PolicyResolver
	judge     DecisionEngine
	quotas    QuotaTracker
	artifacts ArtifactPersister
	records   RecordWriter
	tmpDir    string
	now       func() time.Time
	logger    *zap.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	extractor ContentExtractor,
	expander ArchiveExpander,
	policies PolicyResolver,
	judge DecisionEngine,
	quotas QuotaTracker,
	artifacts ArtifactPersister,
	records RecordWriter,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		expander:  expander,
		policies:  policies,
		judge:     judge,
		quotas:    quotas,
		artifacts: artifacts,
		records:   records,
		tmpDir:    os.TempDir(),
		now:       time.Now,
		logger:    logger,
	}
}

// tempFile tracks one materialized upload for post-verdict persistence and
// guaranteed cleanup.
type tempFile struct {
	path         string
	originalName string
	created      bool
}

// Process runs the full pipeline for one request. Temporary files created
// along the way are removed on every exit path. No record is written and no
// quota is consumed unless the request reaches a final verdict.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Result, error) {
	o.logger.Info("Reimbursement request received",
		zap.String("stage", StageReceived),
		zap.String("user", req.UserEmail),
		zap.Int("files", len(req.Files)))

	if err := validate(req); err != nil {
		return Result{}, err
	}

	// Policy first: the quota limits live on it, and the check must happen
	// before any extraction or LLM cost.
	policy := o.policies.Resolve(ctx, req.UserEmail, req.AdminEmail)

	quotaResult, err := o.quotas.CheckAndReserve(ctx, req.UserEmail, req.AdminEmail, policy)
	if err != nil {
		return Result{}, err
	}
	if !quotaResult.Allowed {
		o.logger.Info("Request rejected by quota",
			zap.String("stage", StageQuotaChecked),
			zap.String("user", req.UserEmail))
		return Result{
			Status:   models.DecisionRejected,
			Feedback: quotaResult.Message,
		}, nil
	}

	var tempFiles []tempFile
	defer func() {
		for _, tf := range tempFiles {
			if !tf.created {
				continue
			}
			if err := os.Remove(tf.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				o.logger.Warn("Failed to remove temp file",
					zap.String("path", tf.path),
					zap.Error(err))
			}
		}
	}()

	o.logger.Debug("Extracting uploads", zap.String("stage", StageExtracting))
	var contents []models.ExtractedContent
	for _, file := range req.Files {
		ext := extract.Extension(file.OriginalName)
		if !extract.Allowed(ext) {
			return Result{}, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, ext)
		}

		tf, err := o.materialize(file)
		if err != nil {
			return Result{}, err
		}
		tempFiles = append(tempFiles, tf)

		if ext == ".zip" {
			expanded, err := o.expander.Expand(tf.path)
			if err != nil {
				return Result{}, err
			}
			contents = append(contents, expanded...)
		} else {
			content, err := o.extractor.Extract(tf.path, ext)
			if err != nil {
				return Result{}, err
			}
			contents = append(contents, content)
		}
	}

	o.logger.Debug("Deciding extracted items",
		zap.String("stage", StageDeciding),
		zap.Int("items", len(contents)))
	verdict, err := o.decideAll(ctx, req.Details, contents, policy)
	if err != nil {
		return Result{}, err
	}

	o.logger.Debug("Persisting artifacts", zap.String("stage", StagePersisting))
	var urls []string
	for _, tf := range tempFiles {
		url, err := o.artifacts.Persist(ctx, tf.path, tf.originalName, verdict.Decision, req.AdminEmail, req.UserEmail)
		if err != nil {
			return Result{}, err
		}
		urls = append(urls, url)
	}

	if verdict.Decision == models.DecisionApproved {
		if err := o.quotas.Commit(ctx, quotaResult.State); err != nil {
			return Result{}, err
		}
	}

	record := &models.ReimbursementRecord{
		UserEmail:    req.UserEmail,
		AdminEmail:   req.AdminEmail,
		Details:      req.Details,
		Status:       verdict.Decision,
		Category:     verdict.Category,
		Amount:       verdict.Amount,
		Feedback:     verdict.Feedback,
		ArtifactURLs: urls,
		CreatedAt:    o.now(),
	}
	if err := o.records.Create(ctx, record); err != nil {
		return Result{}, err
	}

	o.logger.Info("Reimbursement request recorded",
		zap.String("stage", StageRecorded),
		zap.String("user", req.UserEmail),
		zap.String("decision", string(verdict.Decision)),
		zap.Int("processed_files", len(contents)))

	return Result{
		Status:         verdict.Decision,
		Feedback:       verdict.Feedback,
		ProcessedFiles: len(contents),
		ArtifactURLs:   urls,
	}, nil
}

// decideAll judges every extracted item and aggregates: the request is
// Approved only when every item approves. Zero items reject fail-closed
// rather than approving by vacuity. Feedback concatenates in processing
// order, blank-line separated. Category comes from the first item that
// names one; amounts sum across items.
func (o *Orchestrator) decideAll(ctx context.Context, details string, contents []models.ExtractedContent, policy models.Policy) (models.Verdict, error) {
	if len(contents) == 0 {
		return models.Verdict{
			Decision: models.DecisionRejected,
			Feedback: "No readable receipt content was found in the uploaded files.",
		}, nil
	}

	aggregate := models.Verdict{Decision: models.DecisionApproved}
	var feedback []string

	for _, content := range contents {
		verdict, err := o.judge.Decide(ctx, details, content, policy)
		if err != nil {
			return models.Verdict{}, err
		}

		if verdict.Decision != models.DecisionApproved {
			aggregate.Decision = models.DecisionRejected
		}
		if aggregate.Category == "" {
			aggregate.Category = verdict.Category
		}
		aggregate.Amount += verdict.Amount
		if verdict.Feedback != "" {
			feedback = append(feedback, verdict.Feedback)
		}
	}

	aggregate.Feedback = strings.Join(feedback, "\n\n")
	return aggregate, nil
}

// materialize puts an upload on disk under a sanitized, collision-free
// temporary name. Files already on disk are used in place and not deleted.
func (o *Orchestrator) materialize(file models.UploadedFile) (tempFile, error) {
	name := SanitizeFilename(file.OriginalName)

	if !file.InMemory() {
		return tempFile{path: file.Path, originalName: name}, nil
	}

	path := filepath.Join(o.tmpDir, uuid.NewString()[:8]+"_"+name)
	if err := os.WriteFile(path, file.Content, 0o600); err != nil {
		return tempFile{}, fmt.Errorf("failed to save uploaded file %s: %w", name, err)
	}
	return tempFile{path: path, originalName: name, created: true}, nil
}

func validate(req Request) error {
	if !strings.EqualFold(req.Role, "user") {
		return ErrInvalidRole
	}
	if len(req.Files) == 0 {
		return ErrNoFiles
	}
	if req.AdminEmail == "" {
		return ErrNoActiveGroup
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w.-]`)

// SanitizeFilename keeps word characters, dots and hyphens of the base
// name and replaces everything else with underscores.
func SanitizeFilename(filename string) string {
	return unsafeFilenameChars.ReplaceAllString(filepath.Base(filename), "_")
}
