package lock_test

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/lock"
)

func ExampleNewPlatformSignal() {
	s, err := lock.NewPlatformSignal(lock.Options{Interval: time.Second})
	if err != nil {
		log.Fatalf("Failed to open lock signal: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("Failed to close lock signal: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		state, err := s.Next(ctx)
		switch {
		case err == nil:
			log.Printf("The session is %v", state)
		case errors.Is(err, lock.ErrExhausted), ctx.Err() != nil:
			return
		default:
			log.Printf("Failed to read lock state: %v", err)
		}
	}
}

func ExampleNewPoller() {
	locked := false
	p := lock.NewPoller(func() (bool, error) {
		locked = !locked
		return locked, nil
	}, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		state, err := p.Next(context.Background())
		if err != nil {
			log.Fatalf("Poll failed: %v", err)
		}
		log.Printf("Poll %d: %v", i, state)
	}
}
