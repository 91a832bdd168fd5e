package service

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy ограниченный экспоненциальный повтор для ErrUnavailable
type RetryPolicy struct {
	Attempts  uint64
	BaseDelay time.Duration
}

// NoRetry политика без повторов
var NoRetry = RetryPolicy{}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	return retry.WithMaxRetries(p.Attempts, retry.NewExponential(base))
}

// withRetry повторяет fn только для временной недоступности хранилища или процессора.
// Остальные ошибки (валидация, вместимость, отказ процессора) возвращаются сразу.
func withRetry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			if errors.Is(err, model.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}
