package lock

import (
	"context"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/lockstate"
)

// QueryFunc reads the current locked state once; true=Locked, false=Unlocked.
type QueryFunc func() (bool, error)

// Poller is a Signal for platforms that offer no change notification.
// The first call to Next queries immediately, later calls wait one interval first.
// A failed query is returned as a transient error; the next call polls again.
type Poller struct {
	query    QueryFunc
	interval time.Duration
	polled   bool
}

// NewPoller creates a Poller that calls query once per interval.
// A non-positive interval means DefaultInterval.
func NewPoller(query QueryFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Poller{
		query:    query,
		interval: interval,
	}
}

func (p *Poller) Next(ctx context.Context) (lockstate.State, error) {
	if p.polled {
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lockstate.Unlocked, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return lockstate.Unlocked, err
	}
	p.polled = true

	locked, err := p.query()
	if err != nil {
		return lockstate.Unlocked, err
	}

	return lockstate.FromLocked(locked), nil
}

// Close is a no-op; a Poller holds no platform resources between polls.
func (p *Poller) Close() error {
	return nil
}
