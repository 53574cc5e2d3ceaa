package inbound

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// RetryPolicy bounds how often a consumer re-runs a failing handler before
// it gives the delivery up to the dead-letter path.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 200 * time.Millisecond}
}

// Permanent reports whether redelivering the same body can never succeed.
// A stalled saga unwraps to ErrOrderNotFound and is permanent too.
func Permanent(err error) bool {
	var verr *domain.ValidationError
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrProductNotFound) ||
		errors.As(err, &verr)
}

// Handle runs handle until it succeeds, fails permanently, the attempts are
// used up or ctx is done. It returns the last handler error and the number
// of attempts made.
func (p RetryPolicy) Handle(ctx context.Context, handle Handler, body []byte) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		err := handle(ctx, body)
		if err != nil && Permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(p.Delay),
			backoff.WithMaxElapsedTime(0),
		), uint64(retries)),
		ctx,
	)
	return attempts, backoff.Retry(op, b)
}
