package transport

import (
	"context"
	"time"
)

// Pauser sleeps between requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
