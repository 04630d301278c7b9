package lockstate

// Filter holds the last known State and turns a stream of raw samples into
// transitions. Repeated identical samples never produce a Transition.
//
// A Filter is not safe for concurrent use; it belongs to the goroutine that
// consumes the samples.
type Filter struct {
	last State
}

// NewFilter returns a Filter whose last known state is Unlocked. The initial
// state is assumed, not verified, so a first sample of Locked is a transition.
func NewFilter() *Filter {
	return &Filter{last: Unlocked}
}

// Observe feeds one sample to the filter. It returns the transition and true when
// sample differs from the last known state, which is then updated.
func (f *Filter) Observe(sample State) (Transition, bool) {
	if sample == f.last {
		return Transition{}, false
	}

	t := Transition{From: f.last, To: sample}
	f.last = sample
	return t, true
}

// Last returns the last known state.
func (f *Filter) Last() State {
	return f.last
}
