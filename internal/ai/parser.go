package ai

import (
	"strconv"
	"strings"

	"github.com/midaslabs/reimburse/internal/models"
)

// Verdict response grammar: a line starting with a known prefix
// (case-insensitive) populates the matching field; every other non-empty
// line is appended to feedback verbatim, which tolerates models that emit
// extra commentary around the requested format.
const (
	prefixDecision = "decision:"
	prefixCategory = "category:"
	prefixAmount   = "amount:"
	prefixFeedback = "feedback:"
)

// ParseVerdict scans a raw completion into a Verdict. The decision token is
// normalized fail-closed: only the exact word "Approve" approves, anything
// else rejects.
func ParseVerdict(response string) models.Verdict {
	verdict := models.Verdict{Decision: models.DecisionRejected}

	var decision string
	var feedback []string

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		switch {
		case strings.HasPrefix(lower, prefixDecision):
			decision = strings.TrimSpace(trimmed[len(prefixDecision):])
		case strings.HasPrefix(lower, prefixCategory):
			verdict.Category = strings.TrimSpace(trimmed[len(prefixCategory):])
		case strings.HasPrefix(lower, prefixAmount):
			verdict.Amount = parseAmount(trimmed[len(prefixAmount):])
		case strings.HasPrefix(lower, prefixFeedback):
			feedback = append(feedback, strings.TrimSpace(trimmed[len(prefixFeedback):]))
		case trimmed != "":
			feedback = append(feedback, trimmed)
		}
	}

	if decision == "Approve" {
		verdict.Decision = models.DecisionApproved
	}
	verdict.Feedback = strings.Join(feedback, "\n")
	return verdict
}

// parseAmount strips currency symbols and separators before parsing.
// Unparseable amounts default to 0.
func parseAmount(raw string) float64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ':
			return -1
		}
		return r
	}, cleaned)

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}
