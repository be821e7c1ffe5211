package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
)

// runBounded runs fn under a deadline and returns as soon as the deadline
// passes, even if fn is stuck in a decoder that ignores its context. The
// partial result of an abandoned fn is discarded; its goroutine ends once
// the underlying reader fails or finishes.
func runBounded[T any](ctx context.Context, limit time.Duration, unit string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o.err = perrors.InternalError("decoder panic in "+unit, fmt.Errorf("panic: %v", r))
			}
			done <- o
		}()
		o.v, o.err = fn(ctx)
	}()

	var zero T
	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, perrors.Timeout(unit, o.err)
		}
		if o.err != nil {
			return zero, o.err
		}
		return o.v, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, perrors.Timeout(unit, ctx.Err())
		}
		return zero, ctx.Err()
	}
}
