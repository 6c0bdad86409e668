package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// Exporter renders reimbursement records into an XLSX workbook for admin
// download.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new report exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

var headers = []string{"User", "Status", "Category", "Amount", "Details", "Feedback", "Artifacts", "Submitted At"}

// WriteXLSX writes one sheet with a header row followed by one row per
// record, in the order given.
func (e *Exporter) WriteXLSX(records []models.ReimbursementRecord, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
	}

	for i, record := range records {
		row := i + 2
		values := []interface{}{
			record.UserEmail,
			string(record.Status),
			record.Category,
			record.Amount,
			record.Details,
			record.Feedback,
			strings.Join(record.ArtifactURLs, "\n"),
			record.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to set cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Report exported", zap.Int("records", len(records)))
	return nil
}
