package policy

import (
	"context"

	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
	"github.com/midaslabs/reimburse/internal/storage"
)

// Store looks up a structured policy previously saved for a group's admin.
// Returns nil without error when none exists.
type Store interface {
	GetPolicy(ctx context.Context, adminEmail string) (*models.Policy, error)
}

// Extractor derives structured policy fields from a free-form document.
type Extractor interface {
	ExtractPolicy(ctx context.Context, policyText string) models.Policy
}

// Resolver determines the active spending policy for a (user, group) pair.
// Resolution never fails: structured record first, then LLM extraction over
// the group's newest policy document, then global defaults.
type Resolver struct {
	store     Store
	documents storage.ObjectStore
	extractor Extractor
	logger    *zap.Logger
}

// NewResolver creates a policy resolver.
func NewResolver(store Store, documents storage.ObjectStore, extractor Extractor, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:     store,
		documents: documents,
		extractor: extractor,
		logger:    logger,
	}
}

// Resolve returns the policy governing requests from userEmail in the group
// administered by adminEmail. Failures along the way degrade to the next
// source with a warning; the worst case is the default policy.
func (r *Resolver) Resolve(ctx context.Context, userEmail, adminEmail string) models.Policy {
	stored, err := r.store.GetPolicy(ctx, adminEmail)
	if err != nil {
		r.logger.Warn("Structured policy lookup failed",
			zap.String("admin", adminEmail),
			zap.Error(err))
	}
	if stored != nil {
		return *stored
	}

	if text, ok := r.latestPolicyDocument(ctx, adminEmail); ok {
		return r.extractor.ExtractPolicy(ctx, text)
	}

	r.logger.Debug("No policy found, using defaults", zap.String("admin", adminEmail))
	return models.DefaultPolicy()
}

// latestPolicyDocument fetches the newest free-form policy document under
// the group's prefix, skipping the ACTIVE sentinel (handled by the lister).
func (r *Resolver) latestPolicyDocument(ctx context.Context, adminEmail string) (string, bool) {
	prefix := storage.PolicyPrefix(adminEmail)

	names, err := r.documents.List(ctx, prefix)
	if err != nil {
		r.logger.Warn("Policy document listing failed",
			zap.String("prefix", prefix),
			zap.Error(err))
		return "", false
	}
	if len(names) == 0 {
		return "", false
	}

	// Listing order is lexicographic; the last key is the newest document
	// because names carry upload timestamps.
	newest := names[len(names)-1]
	data, err := r.documents.Fetch(ctx, newest)
	if err != nil {
		r.logger.Warn("Policy document fetch failed",
			zap.String("object", newest),
			zap.Error(err))
		return "", false
	}
	return string(data), true
}
