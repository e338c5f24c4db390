package capture

import "github.com/utrack/statlens/internal/model"

// Filter selects which envelope types a watch session receives.
// An empty filter accepts everything.
type Filter struct {
	Types map[model.EnvelopeType]struct{}
}

// NewFilter builds a filter from a list of envelope types.
func NewFilter(types ...model.EnvelopeType) Filter {
	if len(types) == 0 {
		return Filter{}
	}
	set := make(map[model.EnvelopeType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return Filter{Types: set}
}

// Accepts reports whether envelopes of type t pass the filter.
func (f Filter) Accepts(t model.EnvelopeType) bool {
	if len(f.Types) == 0 {
		return true
	}
	_, ok := f.Types[t]
	return ok
}
