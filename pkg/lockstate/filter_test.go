package lockstate

import (
	"testing"
)

func TestFilter_InitialUnlockedSample(t *testing.T) {
	f := NewFilter()

	if _, ok := f.Observe(Unlocked); ok {
		t.Error("Unlocked as first sample should not be a transition")
	}
	if f.Last() != Unlocked {
		t.Errorf("Last() = %v, want %v", f.Last(), Unlocked)
	}
}

func TestFilter_InitialLockedSample(t *testing.T) {
	f := NewFilter()

	tr, ok := f.Observe(Locked)
	if !ok {
		t.Fatal("Locked as first sample should be a transition")
	}
	want := Transition{From: Unlocked, To: Locked}
	if tr != want {
		t.Errorf("Observe(Locked) = %v, want %v", tr, want)
	}
}

func TestFilter_RepeatedSample(t *testing.T) {
	f := NewFilter()
	f.Observe(Locked)

	for i := 0; i < 3; i++ {
		if tr, ok := f.Observe(Locked); ok {
			t.Errorf("repeated sample %d produced transition %v", i, tr)
		}
	}
	if f.Last() != Locked {
		t.Errorf("Last() = %v, want %v", f.Last(), Locked)
	}
}

func TestFilter_Scenario(t *testing.T) {
	f := NewFilter()
	samples := []State{Unlocked, Unlocked, Locked, Locked, Unlocked}

	var got []Transition
	for _, s := range samples {
		if tr, ok := f.Observe(s); ok {
			got = append(got, tr)
		}
	}

	want := []Transition{
		{From: Unlocked, To: Locked},
		{From: Locked, To: Unlocked},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d transitions (%v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
	if got[0].To.Payload() != "lock" || got[1].To.Payload() != "unlock" {
		t.Errorf("payloads = %q, %q, want \"lock\", \"unlock\"", got[0].To.Payload(), got[1].To.Payload())
	}
}

// runs counts maximal runs of equal consecutive values, treating the assumed
// Unlocked start as the head of the sequence.
func runs(samples []State) int {
	n := 1
	prev := Unlocked
	for _, s := range samples {
		if s != prev {
			n++
			prev = s
		}
	}
	return n
}

func TestFilter_TransitionCountMatchesRuns(t *testing.T) {
	tests := []struct {
		name    string
		samples []State
	}{
		{"empty", nil},
		{"constant unlocked", []State{Unlocked, Unlocked, Unlocked}},
		{"constant locked", []State{Locked, Locked}},
		{"alternating", []State{Locked, Unlocked, Locked, Unlocked}},
		{"bursts", []State{Unlocked, Locked, Locked, Locked, Unlocked, Unlocked, Locked}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter()
			count := 0
			for _, s := range tt.samples {
				if _, ok := f.Observe(s); ok {
					count++
				}
			}

			if want := runs(tt.samples) - 1; count != want {
				t.Errorf("got %d transitions, want %d", count, want)
			}
		})
	}
}

func TestFromLocked(t *testing.T) {
	if FromLocked(true) != Locked {
		t.Error("FromLocked(true) should be Locked")
	}
	if FromLocked(false) != Unlocked {
		t.Error("FromLocked(false) should be Unlocked")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unlocked, "Unlocked"},
		{Locked, "Locked"},
		{State(7), "State(7)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", uint8(tt.state), got, tt.want)
		}
	}
}
