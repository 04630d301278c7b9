package sink

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry_GetBeforeRegister(t *testing.T) {
	var r Registry

	s, ok := r.Get()
	if ok {
		t.Error("Get should report false before registration")
	}
	if s != nil {
		t.Errorf("Get returned %v before registration, want nil", s)
	}
}

func TestRegistry_RegisterOnce(t *testing.T) {
	var r Registry

	var firstCalls, secondCalls int
	first := Func(func(string, string) error { firstCalls++; return nil })
	second := Func(func(string, string) error { secondCalls++; return nil })

	if err := r.Register(first); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(second); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register error = %v, want %v", err, ErrAlreadyRegistered)
	}

	s, ok := r.Get()
	if !ok {
		t.Fatal("Get should report true after registration")
	}
	if err := s.Emit(Topic, PayloadLock); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if firstCalls != 1 || secondCalls != 0 {
		t.Errorf("calls = (%d, %d), want (1, 0)", firstCalls, secondCalls)
	}
}

func TestRegistry_RegisterNil(t *testing.T) {
	var r Registry

	if err := r.Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
	if _, ok := r.Get(); ok {
		t.Error("a failed Register should leave the registry empty")
	}
}

type pointerSink struct{}

func (*pointerSink) Emit(string, string) error { return nil }

func TestRegistry_RegisterTypedNil(t *testing.T) {
	tests := []struct {
		name string
		sink Sink
	}{
		{"nil pointer", (*pointerSink)(nil)},
		{"nil func", Func(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Registry

			if err := r.Register(tt.sink); !errors.Is(err, ErrNilSink) {
				t.Errorf("Register error = %v, want %v", err, ErrNilSink)
			}
			if _, ok := r.Get(); ok {
				t.Error("a nil sink should not take the registry slot")
			}
			if err := r.Register(&pointerSink{}); err != nil {
				t.Errorf("Register after a nil sink failed: %v", err)
			}
		})
	}
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	var r Registry
	var wg sync.WaitGroup
	var succeeded atomic.Int32

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Register(Func(func(string, string) error { return nil }))
			if err == nil {
				succeeded.Add(1)
			}
			r.Get()
		}()
	}
	wg.Wait()

	if got := succeeded.Load(); got != 1 {
		t.Errorf("%d registrations succeeded, want 1", got)
	}
}

func TestMulti(t *testing.T) {
	var got []string
	record := func(name string) Sink {
		return Func(func(topic string, payload string) error {
			got = append(got, name+":"+payload)
			return nil
		})
	}
	failing := Func(func(string, string) error { return errors.New("boom") })

	m := Multi(record("a"), nil, failing, record("b"))
	err := m.Emit(Topic, PayloadUnlock)

	if err == nil {
		t.Error("Emit should report the failing sink")
	}
	want := []string{"a:unlock", "b:unlock"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}
