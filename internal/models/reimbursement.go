package models

import "time"

// Decision is the normalized outcome of a reimbursement review.
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

// Policy is an admin-defined spending constraint, resolved once per request
// and treated as an immutable snapshot from then on.
type Policy struct {
	Category  string    `json:"category"`
	MaxAmount float64   `json:"max_amount"`
	Frequency Frequency `json:"frequency"`
}

// Frequency bounds how often a user may get requests approved.
type Frequency struct {
	Times      int `json:"times"`
	WindowDays int `json:"window_days"`
}

// Default policy values applied when a group has no policy of its own and
// field-by-field when LLM extraction comes back incomplete.
const (
	DefaultPolicyCategory   = "Expenses"
	DefaultPolicyMaxAmount  = 500
	DefaultPolicyTimes      = 10
	DefaultPolicyWindowDays = 7
)

// DefaultPolicy returns the global fallback policy.
func DefaultPolicy() Policy {
	return Policy{
		Category:  DefaultPolicyCategory,
		MaxAmount: DefaultPolicyMaxAmount,
		Frequency: Frequency{
			Times:      DefaultPolicyTimes,
			WindowDays: DefaultPolicyWindowDays,
		},
	}
}

// ExtractedContent is the normalized payload produced from one source file.
// Exactly one of Text/ImageBase64 is populated, selected by IsImage.
type ExtractedContent struct {
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	IsImage     bool   `json:"is_image"`
}

// Verdict is the parsed outcome of one LLM decision run.
type Verdict struct {
	Decision Decision `json:"decision"`
	Category string   `json:"category"`
	Amount   float64  `json:"amount"`
	Feedback string   `json:"feedback"`
}

// QuotaState tracks approved-request counts for one (user, group) pair
// within the rolling policy window. Mutated only by the quota tracker.
type QuotaState struct {
	UserEmail   string    `json:"user_email"`
	AdminEmail  string    `json:"admin_email"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// ReimbursementRecord is the append-only result of one completed pipeline
// run. It is written exactly once and never mutated.
type ReimbursementRecord struct {
	ID           int64     `json:"id"`
	UserEmail    string    `json:"user_email"`
	AdminEmail   string    `json:"admin_email"`
	Details      string    `json:"details"`
	Status       Decision  `json:"status"`
	Category     string    `json:"category"`
	Amount       float64   `json:"amount"`
	Feedback     string    `json:"feedback"`
	ArtifactURLs []string  `json:"artifact_urls"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadedFile is a single submitted file, either held in memory (HTTP
// multipart) or already on disk. Exactly one source is set.
type UploadedFile struct {
	OriginalName string
	Content      []byte
	Path         string
}

// InMemory reports whether the file content is buffered rather than on disk.
func (f UploadedFile) InMemory() bool {
	return f.Path == ""
}

// Group is the slice of group bookkeeping the pipeline depends on: the
// admin identity that owns the active group's policy and artifacts.
type Group struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	AdminEmail string    `json:"admin_email"`
	CreatedAt  time.Time `json:"created_at"`
}
