package ocr

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Sleeper 重试等待函数，上下文取消时提前返回
type Sleeper func(ctx context.Context, d time.Duration) error

// contextSleep 默认等待实现
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff 第 attempt 次失败后的等待时间：2s, 4s, 8s...
func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// retrier 指数退避重试，不可重试的错误立即返回
type retrier struct {
	maxRetries int
	sleep      Sleeper
	logger     *zap.Logger
}

func (r *retrier) do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := r.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r.logger.Debug("发起OCR请求", zap.Int("attempt", attempt), zap.Int("maxAttempts", attempts))

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			r.logger.Warn("OCR请求失败，错误不可重试", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		r.logger.Warn("OCR请求失败", zap.Int("attempt", attempt), zap.Error(err))

		// 最后一次失败后不再等待
		if attempt == attempts {
			break
		}
		wait := backoff(attempt)
		r.logger.Info("等待后重试", zap.Duration("wait", wait))
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	r.logger.Error("OCR请求重试次数耗尽", zap.Int("attempts", attempts), zap.Error(lastErr))
	return lastErr
}
