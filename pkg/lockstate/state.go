package lockstate

import "fmt"

// State is the lock state of the session. The zero value is Unlocked.
type State uint8

const (
	Unlocked State = iota
	Locked
)

// FromLocked converts a raw platform boolean; true=Locked, false=Unlocked.
func FromLocked(locked bool) State {
	if locked {
		return Locked
	}
	return Unlocked
}

// IsLocked reports whether s is Locked.
func (s State) IsLocked() bool {
	return s == Locked
}

// Payload returns the event payload for s: "lock" or "unlock".
func (s State) Payload() string {
	if s == Locked {
		return "lock"
	}
	return "unlock"
}

func (s State) String() string {
	switch s {
	case Unlocked:
		return "Unlocked"
	case Locked:
		return "Locked"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Transition is a change from one State to the other. From never equals To.
type Transition struct {
	From State
	To   State
}

func (t Transition) String() string {
	return t.From.String() + "->" + t.To.String()
}
