package sink

import (
	"errors"
	"fmt"
)

type multi []Sink

// Multi returns a Sink that emits to each of sinks in order.
// Nil sinks are skipped. Every sink is called even if an earlier one fails; the
// failures are joined.
func Multi(sinks ...Sink) Sink {
	m := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if !isNil(s) {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Emit(topic string, payload string) error {
	var err error
	for i, s := range m {
		if emitErr := s.Emit(topic, payload); emitErr != nil {
			err = errors.Join(err, fmt.Errorf("sink %d: %w", i, emitErr))
		}
	}
	return err
}
