package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/lock"
	"github.com/MatthiasKunnen/screenlock/pkg/lockstate"
	"github.com/MatthiasKunnen/screenlock/pkg/sink"
	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrExhausted means the lock signal source is gone and no retry is left.
	ErrExhausted = errors.New("lock signal source exhausted")

	// ErrNoSink means a transition was detected before any sink was registered.
	ErrNoSink = errors.New("no sink registered")

	// ErrAlreadyStarted is returned when Run or Start is called more than once.
	ErrAlreadyStarted = errors.New("watcher already started")
)

// State is the lifecycle state of a Watcher.
type State int32

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "Stopped"
	}
	return "Running"
}

// Opener opens the lock signal backend. It is called once at startup and again for
// every retry.
type Opener func() (lock.Signal, error)

// RetryPolicy controls reopening an exhausted backend.
// A zero MaxAttempts disables retrying; the Watcher stops at the first exhaustion.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options configures a Watcher.
type Options struct {
	Logger *slog.Logger
	Retry  RetryPolicy
}

// Watcher reads lock state samples from a backend, filters them down to
// transitions and emits each transition to the registered sink as
// sink.Topic with payload "lock" or "unlock".
type Watcher struct {
	open     Opener
	registry *sink.Registry
	filter   *lockstate.Filter
	logger   *slog.Logger
	retry    RetryPolicy

	started atomic.Bool
	state   atomic.Int32
	done    chan struct{}
	errOnce sync.Once
	err     error
}

// New creates a Watcher that delivers to the sink held by registry.
// The registry may still be empty; it is consulted on every transition.
func New(open Opener, registry *sink.Registry, opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		open:     open,
		registry: registry,
		filter:   lockstate.NewFilter(),
		logger:   logger,
		retry:    opts.Retry,
		done:     make(chan struct{}),
	}
}

// Start runs the Watcher on a new goroutine. Use Done and Err to learn when and
// why it stopped.
func (w *Watcher) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("watcher already started")
		return
	}

	go func() {
		_ = w.run(ctx)
	}()
}

// Run drives the pipeline until the backend is exhausted, a transition finds no
// registered sink, or ctx is cancelled. The returned error tells which:
// ErrExhausted, ErrNoSink, ctx.Err() or the error of the initial open.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	return w.run(ctx)
}

// Done is closed when the Watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Err returns why the Watcher stopped, or nil while it is running.
func (w *Watcher) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// State returns Running until the Watcher has stopped.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

func (w *Watcher) stop(err error) error {
	w.errOnce.Do(func() {
		w.err = err
		w.state.Store(int32(Stopped))
		close(w.done)
	})

	return err
}

func (w *Watcher) run(ctx context.Context) error {
	signal, err := w.open()
	if err != nil {
		w.logger.Error("failed to open lock signal", "err", err)
		return w.stop(fmt.Errorf("failed to open lock signal: %w", err))
	}
	w.logger.Info("watching session lock state")

	retry := w.newBackOff(ctx)

	for {
		err := w.consume(ctx, signal, retry)
		if closeErr := signal.Close(); closeErr != nil {
			w.logger.Debug("failed to close lock signal", "err", closeErr)
		}

		if !errors.Is(err, ErrExhausted) || retry == nil {
			w.logger.Info("watcher stopped", "reason", err)
			return w.stop(err)
		}

		signal, err = w.reopen(ctx, retry)
		if err != nil {
			w.logger.Info("watcher stopped", "reason", err)
			return w.stop(err)
		}
	}
}

// consume feeds samples from signal through the filter until signal is exhausted
// or the Watcher must stop.
func (w *Watcher) consume(ctx context.Context, signal lock.Signal, retry backoff.BackOff) error {
	for {
		sample, err := signal.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, lock.ErrExhausted):
			w.logger.Warn("lock signal exhausted")
			return ErrExhausted
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			w.logger.Warn("failed to read lock state, continuing", "err", err)
			continue
		}

		if retry != nil {
			retry.Reset()
		}

		transition, ok := w.filter.Observe(sample)
		if !ok {
			continue
		}

		s, ok := w.registry.Get()
		if !ok {
			w.logger.Warn("lock state changed but no sink is registered", "transition", transition)
			return ErrNoSink
		}

		w.logger.Info("session lock state changed", "from", transition.From, "to", transition.To)
		if err := s.Emit(sink.Topic, transition.To.Payload()); err != nil {
			w.logger.Debug("failed to emit lock state change", "err", err)
		}
	}
}

// reopen opens the backend again, waiting between attempts as retry dictates.
func (w *Watcher) reopen(ctx context.Context, retry backoff.BackOff) (lock.Signal, error) {
	for {
		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrExhausted
		}

		w.logger.Info("reopening lock signal", "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		signal, err := w.open()
		if err != nil {
			w.logger.Warn("failed to reopen lock signal", "err", err)
			continue
		}

		return signal, nil
	}
}

func (w *Watcher) newBackOff(ctx context.Context) backoff.BackOff {
	if w.retry.MaxAttempts <= 0 {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if w.retry.InitialInterval > 0 {
		b.InitialInterval = w.retry.InitialInterval
	}
	if w.retry.MaxInterval > 0 {
		b.MaxInterval = w.retry.MaxInterval
	}
	b.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.retry.MaxAttempts)), ctx)
	bo.Reset()
	return bo
}
