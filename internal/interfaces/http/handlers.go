package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/extract"
	"github.com/midaslabs/reimburse/internal/models"
	"github.com/midaslabs/reimburse/internal/pipeline"
	"github.com/midaslabs/reimburse/internal/report"
	"github.com/midaslabs/reimburse/internal/storage"
	"github.com/midaslabs/reimburse/pkg/utils"
)

// Pipeline runs one reimbursement request end to end.
type Pipeline interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// GroupDirectory resolves the admin behind a user's active group.
type GroupDirectory interface {
	AdminForUser(ctx context.Context, userEmail string) (string, error)
}

// RecordReader lists completed reimbursement records.
type RecordReader interface {
	ListByUser(ctx context.Context, userEmail string) ([]models.ReimbursementRecord, error)
	ListByAdmin(ctx context.Context, adminEmail string) ([]models.ReimbursementRecord, error)
}

// PolicyWriter saves an admin's structured policy.
type PolicyWriter interface {
	SavePolicy(ctx context.Context, adminEmail string, policy models.Policy) error
}

// PolicyDocuments stores and lists free-form policy documents.
type PolicyDocuments interface {
	UploadText(ctx context.Context, objectName, content string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Extractor pulls text out of uploaded policy documents.
type Extractor interface {
	Extract(path, ext string) (models.ExtractedContent, error)
}

// Handlers contains all HTTP request handlers.
type Handlers struct {
	pipeline      Pipeline
	groups        GroupDirectory
	records       RecordReader
	policies      PolicyWriter
	documents     PolicyDocuments
	extractor     Extractor
	exporter      *report.Exporter
	maxUploadSize int64
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	pipe Pipeline,
	groups GroupDirectory,
	records RecordReader,
	policies PolicyWriter,
	documents PolicyDocuments,
	extractor Extractor,
	exporter *report.Exporter,
	maxUploadSize int64,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		pipeline:      pipe,
		groups:        groups,
		records:       records,
		policies:      policies,
		documents:     documents,
		extractor:     extractor,
		exporter:      exporter,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "reimburse",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// SubmitReimbursement accepts a multipart submission ("details" field plus
// one or more "receipts" files) and runs the decision pipeline.
func (h *Handlers) SubmitReimbursement(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("Invalid multipart form."))
		return
	}

	fileHeaders := form.File["receipts"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, errorEnvelope("Receipt file is required."))
		return
	}

	var files []models.UploadedFile
	for _, header := range fileHeaders {
		if header.Size > h.maxUploadSize {
			c.JSON(http.StatusBadRequest, errorEnvelope(
				fmt.Sprintf("File %s exceeds the %d MB upload limit.", header.Filename, h.maxUploadSize>>20)))
			return
		}

		src, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorEnvelope("Failed to read uploaded file."))
			return
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorEnvelope("Failed to read uploaded file."))
			return
		}

		files = append(files, models.UploadedFile{
			OriginalName: header.Filename,
			Content:      content,
		})
	}

	userEmail := c.GetString(ctxEmail)
	adminEmail, err := h.groups.AdminForUser(c.Request.Context(), userEmail)
	if err != nil {
		h.logger.Error("Group resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to resolve your active group."))
		return
	}
	if adminEmail == "" {
		c.JSON(http.StatusBadRequest, errorEnvelope("No active group or admin email found."))
		return
	}

	result, err := h.pipeline.Process(c.Request.Context(), pipeline.Request{
		Role:       c.GetString(ctxRole),
		UserEmail:  userEmail,
		AdminEmail: adminEmail,
		Details:    c.PostForm("details"),
		Files:      files,
	})
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondPipelineError maps pipeline failures onto the error envelope.
func (h *Handlers) respondPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRole):
		c.JSON(http.StatusForbidden, errorEnvelope("Only users with 'user' role can submit reimbursement requests."))
	case errors.Is(err, pipeline.ErrNoFiles), errors.Is(err, extract.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, errorEnvelope(err.Error()))
	default:
		h.logger.Error("Pipeline failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorEnvelope(err.Error()))
	}
}

// ListMyReimbursements returns the caller's records, newest first.
func (h *Handlers) ListMyReimbursements(c *gin.Context) {
	records, err := h.records.ListByUser(c.Request.Context(), c.GetString(ctxEmail))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to fetch reimbursements."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reimbursements": records})
}

// ListGroupReimbursements returns every record submitted to the admin's
// group.
func (h *Handlers) ListGroupReimbursements(c *gin.Context) {
	records, err := h.records.ListByAdmin(c.Request.Context(), c.GetString(ctxEmail))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to fetch reimbursements."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reimbursements": records})
}

// ExportGroupReimbursements streams the admin's records as an XLSX
// workbook.
func (h *Handlers) ExportGroupReimbursements(c *gin.Context) {
	records, err := h.records.ListByAdmin(c.Request.Context(), c.GetString(ctxEmail))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to fetch reimbursements."))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="reimbursements.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.WriteXLSX(records, c.Writer); err != nil {
		h.logger.Error("Report export failed", zap.Error(err))
	}
}

type manualPolicyRequest struct {
	Category string  `json:"category" binding:"required"`
	Amount   float64 `json:"amount" binding:"required"`
	Times    int     `json:"times" binding:"required"`
	Period   string  `json:"period" binding:"required"`
}

var periodDays = map[string]int{
	"day":   1,
	"week":  7,
	"month": 30,
	"year":  365,
}

// CreatePolicy saves a structured policy and mirrors it as a policy
// document in object storage, marking the policy set active.
func (h *Handlers) CreatePolicy(c *gin.Context) {
	var req manualPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("category, amount, times and period are required."))
		return
	}

	days, ok := periodDays[req.Period]
	if !ok {
		c.JSON(http.StatusBadRequest, errorEnvelope("Invalid period."))
		return
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope(err.Error()))
		return
	}

	adminEmail := c.GetString(ctxEmail)
	policy := models.Policy{
		Category:  req.Category,
		MaxAmount: req.Amount,
		Frequency: models.Frequency{Times: req.Times, WindowDays: days},
	}

	if err := h.policies.SavePolicy(c.Request.Context(), adminEmail, policy); err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to save policy."))
		return
	}

	policyText := fmt.Sprintf(
		"Allow this user to spend in %s up to the amount of %.2f. The user is allowed to make requests %d times per %s.",
		req.Category, req.Amount, req.Times, req.Period)
	if err := h.storePolicyDocument(c.Request.Context(), adminEmail, "manual_policy.txt", policyText); err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to store policy document."))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Policy created successfully"})
}

// UploadPolicyDocument accepts a free-form policy file, extracts its text
// and stores it as the group's policy document.
func (h *Handlers) UploadPolicyDocument(c *gin.Context) {
	header, err := c.FormFile("policyFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("No file uploaded."))
		return
	}
	if header.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, errorEnvelope("Policy file exceeds the upload limit."))
		return
	}

	ext := extract.Extension(header.Filename)
	switch ext {
	case ".pdf", ".docx", ".txt":
	default:
		c.JSON(http.StatusBadRequest, errorEnvelope("Only .pdf, .docx and .txt policy files are allowed."))
		return
	}

	tmp, err := os.CreateTemp("", "policy_*"+ext)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to store uploaded file."))
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveUploadedFile(header, tmpPath); err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to store uploaded file."))
		return
	}

	content, err := h.extractor.Extract(tmpPath, ext)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("Failed to extract text from the policy file."))
		return
	}

	name := pipeline.SanitizeFilename(header.Filename)
	if err := h.storePolicyDocument(c.Request.Context(), c.GetString(ctxEmail), name, content.Text); err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to store policy document."))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Policy uploaded successfully"})
}

// ListPolicyDocuments returns the group's stored policy document names.
func (h *Handlers) ListPolicyDocuments(c *gin.Context) {
	prefix := storage.PolicyPrefix(c.GetString(ctxEmail))
	names, err := h.documents.List(c.Request.Context(), prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope("Failed to list policies."))
		return
	}

	policies := make([]string, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		policies = append(policies, base[:len(base)-len(filepath.Ext(base))])
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

// storePolicyDocument writes a timestamped document under the group's
// policy prefix and refreshes the ACTIVE marker. The timestamp keeps
// lexicographic listing order equal to upload order.
func (h *Handlers) storePolicyDocument(ctx context.Context, adminEmail, filename, text string) error {
	prefix := storage.PolicyPrefix(adminEmail)
	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]
	objectName := fmt.Sprintf("%s%s_%s.txt", prefix, time.Now().UTC().Format("20060102T150405"), base)

	if err := h.documents.UploadText(ctx, objectName, text); err != nil {
		return err
	}
	return h.documents.UploadText(ctx, prefix+storage.ActiveMarker, storage.ActiveMarker)
}
