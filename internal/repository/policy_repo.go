package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// PolicyRepository persists structured policies keyed by the admin that
// owns the group.
type PolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository.
func NewPolicyRepository(db *sql.DB, logger *zap.Logger) *PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// GetPolicy returns the structured policy for an admin, or nil when none
// has been saved.
func (r *PolicyRepository) GetPolicy(ctx context.Context, adminEmail string) (*models.Policy, error) {
	query := `
		SELECT category, max_amount, times, window_days
		FROM policies
		WHERE admin_email = ?
	`

	var policy models.Policy
	err := r.db.QueryRowContext(ctx, query, adminEmail).Scan(
		&policy.Category,
		&policy.MaxAmount,
		&policy.Frequency.Times,
		&policy.Frequency.WindowDays,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load policy", zap.Error(err))
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return &policy, nil
}

// SavePolicy upserts the structured policy for an admin.
func (r *PolicyRepository) SavePolicy(ctx context.Context, adminEmail string, policy models.Policy) error {
	query := `
		INSERT INTO policies (admin_email, category, max_amount, times, window_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(admin_email) DO UPDATE SET
			category = excluded.category,
			max_amount = excluded.max_amount,
			times = excluded.times,
			window_days = excluded.window_days
	`

	if _, err := r.db.ExecContext(ctx, query,
		adminEmail,
		policy.Category,
		policy.MaxAmount,
		policy.Frequency.Times,
		policy.Frequency.WindowDays,
	); err != nil {
		r.logger.Error("Failed to save policy", zap.Error(err))
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}
