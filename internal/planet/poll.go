package planet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PollPolicy bounds a status polling loop. The first check runs immediately.
type PollPolicy struct {
	Interval time.Duration
	// Timeout bounds the whole loop; zero means only ctx bounds it.
	Timeout time.Duration
	// MaxAttempts bounds the number of checks; zero means unlimited.
	MaxAttempts int
	// Multiplier grows the interval after each check; values <= 1 keep it fixed.
	Multiplier  float64
	MaxInterval time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: time.Second, Timeout: 5 * time.Minute, Multiplier: 1}
}

// Poll calls check until it reports done, returns an error, or the policy is
// exhausted.
func (p PollPolicy) Poll(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	interval := p.Interval
	for attempt := 1; ; attempt++ {
		done, err := check(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && p.Timeout > 0 {
				return fmt.Errorf("%w after %d checks", ErrPollTimeout, attempt)
			}
			return err
		}
		if done {
			return nil
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d checks", ErrPollTimeout, attempt)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && p.Timeout > 0 {
				return fmt.Errorf("%w after %d checks", ErrPollTimeout, attempt)
			}
			return ctx.Err()
		case <-timer.C:
		}

		if p.Multiplier > 1 {
			interval = time.Duration(float64(interval) * p.Multiplier)
			if p.MaxInterval > 0 && interval > p.MaxInterval {
				interval = p.MaxInterval
			}
		}
	}
}
