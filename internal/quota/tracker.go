package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// ErrQuotaExceeded marks a request denied by the frequency policy. It is a
// rejection, not a system failure; callers surface it as "policy says no".
var ErrQuotaExceeded = errors.New("request quota exceeded")

// Repository persists quota state per (user, group) key. Updates to one key
// must be atomic under concurrent submissions; Increment in particular must
// not lose updates when two requests commit close together.
type Repository interface {
	Load(ctx context.Context, userEmail, adminEmail string) (*models.QuotaState, error)
	Store(ctx context.Context, state models.QuotaState) error
	Increment(ctx context.Context, userEmail, adminEmail string) error
}

// Result is the outcome of a quota check.
type Result struct {
	Allowed bool
	Message string
	State   models.QuotaState
}

// Tracker enforces policy-defined request frequency limits over a rolling
// window.
type Tracker struct {
	repo   Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker creates a quota tracker.
func NewTracker(repo Repository, logger *zap.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

// CheckAndReserve loads (or creates) the state for the key, resets the
// window if it has elapsed, then checks the count against the policy limit.
// It runs before any extraction or LLM work so a denied request costs
// nothing.
func (t *Tracker) CheckAndReserve(ctx context.Context, userEmail, adminEmail string, policy models.Policy) (Result, error) {
	now := t.now()

	state, err := t.repo.Load(ctx, userEmail, adminEmail)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load quota state: %w", err)
	}
	if state == nil {
		state = &models.QuotaState{
			UserEmail:   userEmail,
			AdminEmail:  adminEmail,
			Count:       0,
			WindowStart: now,
		}
		if err := t.repo.Store(ctx, *state); err != nil {
			return Result{}, fmt.Errorf("failed to create quota state: %w", err)
		}
	}

	window := time.Duration(policy.Frequency.WindowDays) * 24 * time.Hour
	if now.Sub(state.WindowStart) >= window {
		state.Count = 0
		state.WindowStart = now
		if err := t.repo.Store(ctx, *state); err != nil {
			return Result{}, fmt.Errorf("failed to reset quota window: %w", err)
		}
		t.logger.Debug("Quota window reset",
			zap.String("user", userEmail),
			zap.String("admin", adminEmail))
	}

	if state.Count >= policy.Frequency.Times {
		msg := fmt.Sprintf(
			"Request limit reached: policy allows %d approved requests per %d days. Please try again after the current window resets.",
			policy.Frequency.Times, policy.Frequency.WindowDays)
		t.logger.Info("Quota exceeded",
			zap.String("user", userEmail),
			zap.Int("count", state.Count),
			zap.Int("limit", policy.Frequency.Times))
		return Result{Allowed: false, Message: msg, State: *state}, nil
	}

	return Result{Allowed: true, State: *state}, nil
}

// Commit records one approved request against the window. Called only
// after a final Approved verdict; rejections never consume quota. The
// increment happens inside the database so two requests that both passed
// CheckAndReserve before either committed still count twice.
func (t *Tracker) Commit(ctx context.Context, state models.QuotaState) error {
	if err := t.repo.Increment(ctx, state.UserEmail, state.AdminEmail); err != nil {
		return fmt.Errorf("failed to commit quota: %w", err)
	}
	t.logger.Debug("Quota committed",
		zap.String("user", state.UserEmail),
		zap.String("admin", state.AdminEmail))
	return nil
}
