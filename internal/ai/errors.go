package ai

import "errors"

var (
	// ErrProviderRateLimited marks a 429-equivalent provider response.
	// Retried transparently inside the judge, never surfaced on its own.
	ErrProviderRateLimited = errors.New("llm provider rate limited")

	// ErrProviderExhausted means every retry attempt hit rate limiting.
	ErrProviderExhausted = errors.New("llm provider retries exhausted")

	// ErrEmptyResponse means the provider returned no completion choices.
	ErrEmptyResponse = errors.New("empty response from llm provider")
)
