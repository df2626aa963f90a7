// Package clock provides the wall-clock implementation of ports.Clock.
package clock

import (
	"context"
	"time"

	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
)

var _ ports.Clock = System{}

// System reads the system clock. Response delays sleep on real timers.
type System struct{}

// New returns the system clock.
func New() System {
	return System{}
}

func (System) Now() time.Time { return time.Now() }

// SleepContext waits for d unless ctx ends first. A non-positive d only
// reports whether ctx is already done.
func (System) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
