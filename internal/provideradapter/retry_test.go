package provideradapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, MaxRetries: 3}
}

func TestRetryPolicy_Attempt_SucceedsImmediately(t *testing.T) {
	policy := fastRetryPolicy()
	delivered := false

	calls := 0
	err := policy.Attempt(context.Background(), &delivered, nil, func(ctx context.Context) (int, error) {
		calls++
		return 200, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Attempt_401TriggersSingleRefreshThenRetries(t *testing.T) {
	policy := fastRetryPolicy()
	delivered := false
	refreshed := 0
	calls := 0

	err := policy.Attempt(context.Background(), &delivered,
		func(ctx context.Context) error {
			refreshed++
			return nil
		},
		func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 401, errors.New("unauthorized")
			}
			return 200, nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_Attempt_401OnlyRefreshesOnce(t *testing.T) {
	policy := fastRetryPolicy()
	delivered := false
	refreshed := 0
	calls := 0

	err := policy.Attempt(context.Background(), &delivered,
		func(ctx context.Context) error {
			refreshed++
			return nil
		},
		func(ctx context.Context) (int, error) {
			calls++
			return 401, errors.New("still unauthorized")
		},
	)

	require.Error(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_Attempt_429BacksOffUpToMaxRetries(t *testing.T) {
	policy := fastRetryPolicy()
	delivered := false
	calls := 0

	err := policy.Attempt(context.Background(), &delivered, nil, func(ctx context.Context) (int, error) {
		calls++
		return 429, errors.New("rate limited")
	})

	require.Error(t, err)
	assert.Equal(t, policy.MaxRetries+1, calls)
}

func TestRetryPolicy_Attempt_DeliveredLatchStopsFurtherRetries(t *testing.T) {
	policy := fastRetryPolicy()
	delivered := true
	calls := 0

	err := policy.Attempt(context.Background(), &delivered, nil, func(ctx context.Context) (int, error) {
		calls++
		return 500, errors.New("server error after partial stream")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Attempt_NonRetryableStatusStopsImmediately(t *testing.T) {
	policy := fastRetryPolicy()
	delivered := false
	calls := 0

	err := policy.Attempt(context.Background(), &delivered, nil, func(ctx context.Context) (int, error) {
		calls++
		return 404, errors.New("not found")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
