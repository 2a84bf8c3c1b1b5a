package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/services"
	"github.com/BradenHooton/warden/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestTracker(t *testing.T, config services.LockoutConfig) (*services.AttemptTracker, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(testEpoch)
	tracker, err := services.NewAttemptTracker(store.NewMemoryStore(clk, 4), clk, config, discardLogger(), nil)
	require.NoError(t, err)
	return tracker, clk
}

func TestAttemptTracker_LocksAtThreshold(t *testing.T) {
	tracker, _ := newTestTracker(t, services.DefaultLockoutConfig())
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		rec, err := tracker.RecordFailure(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, i, rec.FailedCount)
		assert.Nil(t, rec.LockedUntil)
	}

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 4, status.FailedCount)

	rec, err := tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.FailedCount)
	require.NotNil(t, rec.LockedUntil)
	assert.Equal(t, testEpoch.Add(15*time.Minute), *rec.LockedUntil)

	status, err = tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, 15*time.Minute, status.Remaining)
}

func TestAttemptTracker_FailuresWhileLockedDoNotExtend(t *testing.T) {
	tracker, clk := newTestTracker(t, services.DefaultLockoutConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tracker.RecordFailure(ctx, "alice@example.com")
		require.NoError(t, err)
	}

	clk.Advance(5 * time.Minute)
	rec, err := tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.FailedCount)
	assert.Equal(t, testEpoch.Add(15*time.Minute), *rec.LockedUntil)

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, status.Remaining)
}

func TestAttemptTracker_LockExpiresAndCountRestarts(t *testing.T) {
	tracker, clk := newTestTracker(t, services.DefaultLockoutConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tracker.RecordFailure(ctx, "alice@example.com")
		require.NoError(t, err)
	}

	clk.Advance(15 * time.Minute)

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Zero(t, status.Remaining)

	rec, err := tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailedCount)
	assert.Nil(t, rec.LockedUntil)
}

func TestAttemptTracker_SuccessClearsState(t *testing.T) {
	tracker, _ := newTestTracker(t, services.DefaultLockoutConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tracker.RecordFailure(ctx, "alice@example.com")
		require.NoError(t, err)
	}
	require.NoError(t, tracker.RecordSuccess(ctx, "alice@example.com"))

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, services.LockStatus{}, status)

	// Clearing an account with no record is fine
	require.NoError(t, tracker.RecordSuccess(ctx, "nobody@example.com"))
}

func TestAttemptTracker_KeysAreNormalized(t *testing.T) {
	tracker, _ := newTestTracker(t, services.DefaultLockoutConfig())
	ctx := context.Background()

	_, err := tracker.RecordFailure(ctx, "Alice@Example.com ")
	require.NoError(t, err)
	_, err = tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)

	status, err := tracker.Status(ctx, "ALICE@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, 2, status.FailedCount)

	other, err := tracker.Status(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Zero(t, other.FailedCount)
}

func TestAttemptTracker_FailureRetention(t *testing.T) {
	config := services.DefaultLockoutConfig()
	config.FailureRetention = time.Hour
	tracker, clk := newTestTracker(t, config)
	ctx := context.Background()

	_, err := tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Zero(t, status.FailedCount)
}

func TestAttemptTracker_LockOutlivesShortRetention(t *testing.T) {
	config := services.DefaultLockoutConfig()
	config.FailureRetention = time.Minute
	tracker, clk := newTestTracker(t, config)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tracker.RecordFailure(ctx, "alice@example.com")
		require.NoError(t, err)
	}

	clk.Advance(10 * time.Minute)

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, 5*time.Minute, status.Remaining)
}

func TestAttemptTracker_ZeroRetentionKeepsFailures(t *testing.T) {
	config := services.DefaultLockoutConfig()
	config.FailureRetention = 0
	tracker, clk := newTestTracker(t, config)
	ctx := context.Background()

	_, err := tracker.RecordFailure(ctx, "alice@example.com")
	require.NoError(t, err)

	clk.Advance(1000 * time.Hour)

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, status.FailedCount)
}

func TestAttemptTracker_ConcurrentFailuresAreNotLost(t *testing.T) {
	config := services.DefaultLockoutConfig()
	config.MaxFailedAttempts = 1000
	tracker, _ := newTestTracker(t, config)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.RecordFailure(ctx, "alice@example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, workers, status.FailedCount)
}

func TestAttemptTracker_ConcurrentFailuresLockExactlyOnce(t *testing.T) {
	tracker, _ := newTestTracker(t, services.DefaultLockoutConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.RecordFailure(ctx, "alice@example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	status, err := tracker.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, 5, status.FailedCount)
	assert.Equal(t, 15*time.Minute, status.Remaining)
}

func TestAttemptTracker_CancelledContext(t *testing.T) {
	tracker, _ := newTestTracker(t, services.DefaultLockoutConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.RecordFailure(ctx, "alice@example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAttemptTracker_InvalidConfig(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	st := store.NewMemoryStore(clk, 1)

	tests := []struct {
		name   string
		config services.LockoutConfig
	}{
		{name: "zero threshold", config: services.LockoutConfig{MaxFailedAttempts: 0, LockoutDuration: time.Minute}},
		{name: "zero duration", config: services.LockoutConfig{MaxFailedAttempts: 5}},
		{name: "negative retention", config: services.LockoutConfig{MaxFailedAttempts: 5, LockoutDuration: time.Minute, FailureRetention: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.NewAttemptTracker(st, clk, tt.config, discardLogger(), nil)
			assert.Error(t, err)
		})
	}
}
