package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/lockstate"
)

var (
	// ErrExhausted is returned by Signal.Next when the platform source is permanently
	// unavailable, e.g. the bus disconnected or the message loop terminated.
	ErrExhausted = errors.New("lock signal exhausted")

	// ErrUnsupported is returned by NewPlatformSignal on platforms without a backend.
	ErrUnsupported = errors.New("lock signal not supported on this platform")
)

// DefaultInterval is the poll and throttle cadence used when Options.Interval is zero.
const DefaultInterval = time.Second

// Signal supplies raw lock state samples of the current session.
//
// Next either blocks until the platform delivers a value or polls with a latency
// bounded by the configured interval. It may return the same value repeatedly.
// Next returns ErrExhausted once the source is gone for good and ctx.Err() when ctx
// is cancelled. Any other error is transient.
//
// A Signal is driven by a single goroutine; Close may be called from another one.
type Signal interface {
	Next(ctx context.Context) (lockstate.State, error)
	io.Closer
}

// Options configures the platform backend.
type Options struct {
	// Interval is the poll cadence of polling backends and the throttle applied by
	// notification backends after each notification.
	Interval time.Duration

	// SessionID selects the logind session on Linux.
	// Empty means XDG_SESSION_ID, falling back to logind's "auto" session.
	SessionID string

	Logger *slog.Logger
}

func (o Options) interval() time.Duration {
	if o.Interval <= 0 {
		return DefaultInterval
	}
	return o.Interval
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// NewPlatformSignal opens the backend of the platform this binary was built for.
func NewPlatformSignal(opts Options) (Signal, error) {
	return newPlatformSignal(opts)
}
