package ai

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// PolicyExtractor turns a free-form policy document into structured policy
// fields using the LLM, degrading field by field to defaults. It never
// returns an error to callers: an unusable response is the default policy.
type PolicyExtractor struct {
	client      ChatCompleter
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewPolicyExtractor creates a new policy extractor.
func NewPolicyExtractor(client ChatCompleter, model string, temperature float32, logger *zap.Logger) *PolicyExtractor {
	return &PolicyExtractor{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// extractedPolicy mirrors the JSON shape requested from the model.
// Pointers distinguish missing keys from zero values so each field can fall
// back independently.
type extractedPolicy struct {
	Category  *string  `json:"category"`
	Amount    *float64 `json:"amount"`
	Frequency *struct {
		Times *int `json:"times"`
		Days  *int `json:"days"`
	} `json:"frequency"`
}

// ExtractPolicy prompts the model for the fixed JSON shape and merges the
// parsed fields over the default policy.
func (pe *PolicyExtractor) ExtractPolicy(ctx context.Context, policyText string) models.Policy {
	policy := models.DefaultPolicy()

	req := openai.ChatCompletionRequest{
		Model:       pe.model,
		Temperature: pe.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You extract structured spending policy fields from policy documents. Always respond with a single valid JSON object and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPolicyExtractionPrompt(policyText),
			},
		},
	}

	resp, err := pe.client.CreateChatCompletion(ctx, req)
	if err != nil {
		pe.logger.Warn("Policy extraction call failed, using defaults", zap.Error(err))
		return policy
	}

	content, err := firstChoice(resp)
	if err != nil {
		pe.logger.Warn("Policy extraction returned no choices, using defaults")
		return policy
	}

	parsed, ok := parsePolicyJSON(content)
	if !ok {
		pe.logger.Warn("Policy extraction response is not valid JSON, using defaults",
			zap.String("content", content))
		return policy
	}

	if parsed.Category != nil && *parsed.Category != "" {
		policy.Category = *parsed.Category
	}
	if parsed.Amount != nil && *parsed.Amount > 0 {
		policy.MaxAmount = *parsed.Amount
	}
	if parsed.Frequency != nil {
		if parsed.Frequency.Times != nil && *parsed.Frequency.Times > 0 {
			policy.Frequency.Times = *parsed.Frequency.Times
		}
		if parsed.Frequency.Days != nil && *parsed.Frequency.Days > 0 {
			policy.Frequency.WindowDays = *parsed.Frequency.Days
		}
	}

	pe.logger.Info("Policy extracted from document",
		zap.String("category", policy.Category),
		zap.Float64("max_amount", policy.MaxAmount),
		zap.Int("times", policy.Frequency.Times),
		zap.Int("window_days", policy.Frequency.WindowDays))
	return policy
}

// parsePolicyJSON unmarshals the response, tolerating models that wrap the
// object in markdown or commentary by slicing out the first balanced JSON
// object.
func parsePolicyJSON(content string) (extractedPolicy, bool) {
	var parsed extractedPolicy
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return parsed, true
	}

	start := findJSONStart(content)
	if start < 0 {
		return extractedPolicy{}, false
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return extractedPolicy{}, false
	}
	if err := json.Unmarshal([]byte(content[start:end]), &parsed); err != nil {
		return extractedPolicy{}, false
	}
	return parsed, true
}

// findJSONStart finds the first '{' in the content.
func findJSONStart(content string) int {
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			return i
		}
	}
	return -1
}

// findJSONEnd walks from start counting braces, skipping string literals,
// and returns the index one past the matching closing brace.
func findJSONEnd(content string, start int) int {
	if start < 0 || start >= len(content) || content[start] != '{' {
		return -1
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if char == '{' {
			braceCount++
		} else if char == '}' {
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}
	return -1
}
