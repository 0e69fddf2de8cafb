// Package system provides wall-clock implementations of channel.Clock and
// channel.Pauser.
package system

import (
	"context"
	"time"
)

// Clock implements channel.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Pauser implements channel.Pauser with a timer that yields to context
// cancellation.
type Pauser struct{}

// NewPauser creates a Pauser.
func NewPauser() *Pauser {
	return &Pauser{}
}

// Pause blocks for d or until ctx is done.
func (Pauser) Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
