package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Judge submits extracted receipt content plus policy context to the LLM
// and parses a structured verdict out of the completion.
type Judge struct {
	client      ChatCompleter
	model       string
	temperature float32
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewJudge creates a decision engine backed by the given chat client.
func NewJudge(client ChatCompleter, model string, temperature float32, logger *zap.Logger) *Judge {
	return &Judge{
		client:      client,
		model:       model,
		temperature: temperature,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		now:         time.Now,
		logger:      logger,
	}
}

// Decide evaluates one extracted item against the policy and returns the
// normalized verdict. Rate-limited provider responses are retried with
// exponential backoff; any other provider failure propagates immediately.
func (j *Judge) Decide(ctx context.Context, details string, content models.ExtractedContent, policy models.Policy) (models.Verdict, error) {
	req := openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: j.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildDecisionSystemPrompt(policy, j.now()),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildDecisionUserPrompt(content, details),
			},
		},
	}

	response, err := j.completeWithRetry(ctx, req)
	if err != nil {
		return models.Verdict{}, err
	}

	verdict := ParseVerdict(response)
	j.logger.Info("Decision completed",
		zap.String("decision", string(verdict.Decision)),
		zap.String("category", verdict.Category),
		zap.Float64("amount", verdict.Amount))
	return verdict, nil
}

// completeWithRetry runs the chat call with up to maxAttempts tries. Only
// rate limiting retries; the sleep is baseDelay * 2^attempt and honors ctx
// cancellation.
func (j *Judge) completeWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt < j.maxAttempts; attempt++ {
		resp, err := j.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return firstChoice(resp)
		}

		if !isRateLimited(err) {
			j.logger.Error("LLM call failed", zap.Error(err))
			return "", fmt.Errorf("llm call failed: %w", err)
		}

		lastErr = err
		if attempt < j.maxAttempts-1 {
			backoff := j.baseDelay * (1 << uint(attempt))
			j.logger.Warn("LLM provider rate limited, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	j.logger.Error("LLM retries exhausted",
		zap.Int("max_attempts", j.maxAttempts),
		zap.Error(lastErr))
	return "", fmt.Errorf("%w after %d attempts: %v", ErrProviderExhausted, j.maxAttempts, lastErr)
}
