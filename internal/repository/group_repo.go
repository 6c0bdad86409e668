package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// GroupRepository resolves group membership maintained by the external
// group bookkeeping system. The pipeline only needs one answer from it: the
// admin identity behind a user's active group.
type GroupRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *sql.DB, logger *zap.Logger) *GroupRepository {
	return &GroupRepository{
		db:     db,
		logger: logger,
	}
}

// AdminForUser returns the admin email of the user's active group, or ""
// when the user has no active group.
func (r *GroupRepository) AdminForUser(ctx context.Context, userEmail string) (string, error) {
	query := `
		SELECT g.admin_email
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_email = ? AND m.active = 1
		LIMIT 1
	`

	var adminEmail string
	err := r.db.QueryRowContext(ctx, query, userEmail).Scan(&adminEmail)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to resolve active group", zap.Error(err))
		return "", fmt.Errorf("failed to resolve active group: %w", err)
	}
	return adminEmail, nil
}
