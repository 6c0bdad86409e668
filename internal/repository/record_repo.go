package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// RecordRepository persists completed reimbursement runs. Records are
// append-only; there is deliberately no update method.
type RecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sql.DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts one record and fills in its generated ID.
func (r *RecordRepository) Create(ctx context.Context, record *models.ReimbursementRecord) error {
	urls, err := json.Marshal(record.ArtifactURLs)
	if err != nil {
		return fmt.Errorf("failed to encode artifact urls: %w", err)
	}

	query := `
		INSERT INTO reimbursement_records (
			user_email, admin_email, details, status, category,
			amount, feedback, artifact_urls, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.UserEmail,
		record.AdminEmail,
		record.Details,
		string(record.Status),
		record.Category,
		record.Amount,
		record.Feedback,
		string(urls),
		record.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create reimbursement record", zap.Error(err))
		return fmt.Errorf("failed to create record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// ListByUser returns a user's records, newest first.
func (r *RecordRepository) ListByUser(ctx context.Context, userEmail string) ([]models.ReimbursementRecord, error) {
	return r.list(ctx, "user_email", userEmail)
}

// ListByAdmin returns every record submitted to an admin's group, newest
// first.
func (r *RecordRepository) ListByAdmin(ctx context.Context, adminEmail string) ([]models.ReimbursementRecord, error) {
	return r.list(ctx, "admin_email", adminEmail)
}

func (r *RecordRepository) list(ctx context.Context, column, value string) ([]models.ReimbursementRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, user_email, admin_email, details, status, category,
		       amount, feedback, artifact_urls, created_at
		FROM reimbursement_records
		WHERE %s = ?
		ORDER BY created_at DESC
	`, column)

	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		r.logger.Error("Failed to list reimbursement records", zap.Error(err))
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []models.ReimbursementRecord
	for rows.Next() {
		var record models.ReimbursementRecord
		var status, urls string
		if err := rows.Scan(
			&record.ID,
			&record.UserEmail,
			&record.AdminEmail,
			&record.Details,
			&status,
			&record.Category,
			&record.Amount,
			&record.Feedback,
			&urls,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Status = models.Decision(status)
		if err := json.Unmarshal([]byte(urls), &record.ArtifactURLs); err != nil {
			r.logger.Warn("Corrupt artifact url list",
				zap.Int64("record_id", record.ID),
				zap.Error(err))
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
