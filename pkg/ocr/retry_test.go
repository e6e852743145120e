package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordSleep 记录等待时长而不真正等待
func recordSleep(waits *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 8*time.Second, backoff(3))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection reset", newAPIError(CodeConnReset, "", "", 0), true},
		{"timeout", newAPIError(CodeRequestTimeout, "", "", 0), true},
		{"dns", newAPIError(CodeNotFound, "", "", 0), true},
		{"server error", newAPIError("HTTP_503", "", "", 503), true},
		{"throttling", newAPIError("Throttling.User", "", "", 200), true},
		{"qps limit", newAPIError("QpsLimitExceeded", "", "", 0), true},
		{"bad parameter", newAPIError("InvalidParameter", "", "", 400), false},
		{"parse error on 5xx", newAPIError(CodeParseError, "", "", 502), false},
		{"flag set on unknown code", &APIError{Code: "Custom", Retryable: true}, true},
		{"flag cleared on 5xx", &APIError{Code: "HTTP_503", HTTPStatus: 503}, false},
		{"plain error", errors.New("boom"), false},
		{"config error", &ConfigurationError{Provider: ProviderAliyun}, false},
		{"wrapped", errors.Join(errors.New("ctx"), newAPIError(CodeNetworkError, "", "", 0)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetrierStopsOnNonRetryable(t *testing.T) {
	var waits []time.Duration
	r := &retrier{maxRetries: 3, sleep: recordSleep(&waits), logger: zap.NewNop()}

	calls := 0
	err := r.do(context.Background(), func(context.Context) error {
		calls++
		return newAPIError("InvalidParameter", "bad", "", 400)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestRetrierExhausts(t *testing.T) {
	var waits []time.Duration
	r := &retrier{maxRetries: 3, sleep: recordSleep(&waits), logger: zap.NewNop()}

	calls := 0
	err := r.do(context.Background(), func(context.Context) error {
		calls++
		return newAPIError(CodeConnReset, "reset", "", 0)
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeConnReset, apiErr.Code)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
}

func TestRetrierZeroRetriesStillTriesOnce(t *testing.T) {
	r := &retrier{maxRetries: 0, sleep: contextSleep, logger: zap.NewNop()}

	calls := 0
	require.NoError(t, r.do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestRetrierCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &retrier{
		maxRetries: 3,
		sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return contextSleep(ctx, d)
		},
		logger: zap.NewNop(),
	}

	calls := 0
	err := r.do(ctx, func(context.Context) error {
		calls++
		return newAPIError(CodeNetworkError, "down", "", 0)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
