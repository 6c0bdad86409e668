package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// QuotaRepository persists per-(user, group) request counters.
type QuotaRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQuotaRepository creates a new quota repository.
func NewQuotaRepository(db *sql.DB, logger *zap.Logger) *QuotaRepository {
	return &QuotaRepository{
		db:     db,
		logger: logger,
	}
}

// Load returns the state for the key, or nil when none exists yet.
func (r *QuotaRepository) Load(ctx context.Context, userEmail, adminEmail string) (*models.QuotaState, error) {
	query := `
		SELECT user_email, admin_email, count, window_start
		FROM quota_states
		WHERE user_email = ? AND admin_email = ?
	`

	var state models.QuotaState
	err := r.db.QueryRowContext(ctx, query, userEmail, adminEmail).Scan(
		&state.UserEmail,
		&state.AdminEmail,
		&state.Count,
		&state.WindowStart,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load quota state", zap.Error(err))
		return nil, fmt.Errorf("failed to load quota state: %w", err)
	}
	return &state, nil
}

// Store upserts the state for its key. The single-statement upsert keeps
// concurrent submissions from the same user from losing updates.
func (r *QuotaRepository) Store(ctx context.Context, state models.QuotaState) error {
	query := `
		INSERT INTO quota_states (user_email, admin_email, count, window_start)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_email, admin_email) DO UPDATE SET
			count = excluded.count,
			window_start = excluded.window_start
	`

	if _, err := r.db.ExecContext(ctx, query,
		state.UserEmail,
		state.AdminEmail,
		state.Count,
		state.WindowStart,
	); err != nil {
		r.logger.Error("Failed to store quota state", zap.Error(err))
		return fmt.Errorf("failed to store quota state: %w", err)
	}
	return nil
}

// Increment adds one approved request to the key's counter. The arithmetic
// runs inside the database so concurrent commits for the same key never
// lose updates; a missing row (the key was never checked) starts at 1.
func (r *QuotaRepository) Increment(ctx context.Context, userEmail, adminEmail string) error {
	query := `
		INSERT INTO quota_states (user_email, admin_email, count, window_start)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(user_email, admin_email) DO UPDATE SET
			count = count + 1
	`

	if _, err := r.db.ExecContext(ctx, query, userEmail, adminEmail); err != nil {
		r.logger.Error("Failed to increment quota", zap.Error(err))
		return fmt.Errorf("failed to increment quota: %w", err)
	}
	return nil
}
