package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

type memoryRepo struct {
	states  map[string]models.QuotaState
	loadErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{states: make(map[string]models.QuotaState)}
}

func (m *memoryRepo) key(user, admin string) string { return user + "|" + admin }

func (m *memoryRepo) Load(_ context.Context, userEmail, adminEmail string) (*models.QuotaState, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	state, ok := m.states[m.key(userEmail, adminEmail)]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *memoryRepo) Store(_ context.Context, state models.QuotaState) error {
	m.states[m.key(state.UserEmail, state.AdminEmail)] = state
	return nil
}

func (m *memoryRepo) Increment(_ context.Context, userEmail, adminEmail string) error {
	key := m.key(userEmail, adminEmail)
	state := m.states[key]
	state.UserEmail = userEmail
	state.AdminEmail = adminEmail
	state.Count++
	m.states[key] = state
	return nil
}

func testPolicy(times, windowDays int) models.Policy {
	return models.Policy{
		Category:  "Expenses",
		MaxAmount: 500,
		Frequency: models.Frequency{Times: times, WindowDays: windowDays},
	}
}

func newTestTracker(repo Repository, now time.Time) *Tracker {
	tracker := NewTracker(repo, zap.NewNop())
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestCheckAndReserveCreatesState(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(repo, now)

	result, err := tracker.CheckAndReserve(context.Background(), "u@x.com", "a@x.com", testPolicy(10, 7))

	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.State.Count)
	assert.Equal(t, now, result.State.WindowStart)

	stored, err := repo.Load(context.Background(), "u@x.com", "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCheckAndReserveDeniesAtLimit(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Store(context.Background(), models.QuotaState{
		UserEmail:   "u@x.com",
		AdminEmail:  "a@x.com",
		Count:       10,
		WindowStart: now.Add(-24 * time.Hour),
	}))
	tracker := newTestTracker(repo, now)

	result, err := tracker.CheckAndReserve(context.Background(), "u@x.com", "a@x.com", testPolicy(10, 7))

	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Message, "10")
	assert.Contains(t, result.Message, "7 days")
}

func TestCheckAndReserveResetsElapsedWindow(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Store(context.Background(), models.QuotaState{
		UserEmail:   "u@x.com",
		AdminEmail:  "a@x.com",
		Count:       10,
		WindowStart: now.Add(-8 * 24 * time.Hour),
	}))
	tracker := newTestTracker(repo, now)

	result, err := tracker.CheckAndReserve(context.Background(), "u@x.com", "a@x.com", testPolicy(10, 7))

	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.State.Count)
	assert.Equal(t, now, result.State.WindowStart)
}

func TestCheckAndReserveKeepsOpenWindow(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-6 * 24 * time.Hour)
	require.NoError(t, repo.Store(context.Background(), models.QuotaState{
		UserEmail:   "u@x.com",
		AdminEmail:  "a@x.com",
		Count:       4,
		WindowStart: windowStart,
	}))
	tracker := newTestTracker(repo, now)

	result, err := tracker.CheckAndReserve(context.Background(), "u@x.com", "a@x.com", testPolicy(10, 7))

	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.State.Count)
	assert.Equal(t, windowStart, result.State.WindowStart)
}

func TestCommitIncrementsCount(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(repo, now)

	result, err := tracker.CheckAndReserve(context.Background(), "u@x.com", "a@x.com", testPolicy(10, 7))
	require.NoError(t, err)
	require.NoError(t, tracker.Commit(context.Background(), result.State))

	stored, err := repo.Load(context.Background(), "u@x.com", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Count)
}

func TestCommitInterleavedSubmissionsCountBoth(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(repo, now)
	ctx := context.Background()

	// Both requests pass the check before either commits; each commit must
	// still land.
	first, err := tracker.CheckAndReserve(ctx, "u@x.com", "a@x.com", testPolicy(10, 7))
	require.NoError(t, err)
	second, err := tracker.CheckAndReserve(ctx, "u@x.com", "a@x.com", testPolicy(10, 7))
	require.NoError(t, err)

	require.NoError(t, tracker.Commit(ctx, first.State))
	require.NoError(t, tracker.Commit(ctx, second.State))

	stored, err := repo.Load(ctx, "u@x.com", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Count)
}

func TestCheckAndReservePropagatesLoadErrors(t *testing.T) {
	repo := newMemoryRepo()
	repo.loadErr = errors.New("db locked")
	tracker := newTestTracker(repo, time.Now())

	_, err := tracker.CheckAndReserve(context.Background(), "u@x.com", "a@x.com", testPolicy(10, 7))
	assert.Error(t, err)
}
