package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

func TestWriteXLSX(t *testing.T) {
	records := []models.ReimbursementRecord{
		{
			UserEmail:    "u@x.com",
			Status:       models.DecisionApproved,
			Category:     "Travel",
			Amount:       42.5,
			Details:      "taxi to airport",
			Feedback:     "within policy",
			ArtifactURLs: []string{"https://store.test/a", "https://store.test/b"},
			CreatedAt:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			UserEmail: "other@x.com",
			Status:    models.DecisionRejected,
			CreatedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	exporter := NewExporter(zap.NewNop())
	require.NoError(t, exporter.WriteXLSX(records, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "u@x.com", rows[1][0])
	assert.Equal(t, "Approved", rows[1][1])
	assert.Equal(t, "Travel", rows[1][2])
	assert.Equal(t, "42.5", rows[1][3])
	assert.Equal(t, "https://store.test/a\nhttps://store.test/b", rows[1][6])
	assert.Equal(t, "other@x.com", rows[2][0])
	assert.Equal(t, "Rejected", rows[2][1])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewExporter(zap.NewNop())
	require.NoError(t, exporter.WriteXLSX(nil, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, headers, rows[0])
}
