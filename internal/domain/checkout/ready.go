package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrProviderUnavailable is the single outcome of a provider that did not
// become ready in time.
var ErrProviderUnavailable = errors.New("checkout: payment provider unavailable")

// AwaitReady calls ready until it succeeds, ctx ends or timeout passes.
// Attempts back off from 100ms up to 2s.
func AwaitReady(ctx context.Context, ready func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := 100 * time.Millisecond
	var last error
	for {
		if last = ready(ctx); last == nil {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, last)
		case <-timer.C:
		}
		if delay *= 2; delay > 2*time.Second {
			delay = 2 * time.Second
		}
	}
}
