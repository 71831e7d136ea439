package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return apierror.New("jira", 400, "bad request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryableError_EventualSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apierror.New("toggl", 503, "maintenance")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryableError_AllFail(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		return apierror.New("toggl", 429, "rate limit")
	})
	assert.ErrorIs(t, err, apierror.ErrRateLimit)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Second}
	err := Do(ctx, cfg, func(ctx context.Context) error {
		return apierror.ErrUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_GenericNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return errors.New("generic error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
