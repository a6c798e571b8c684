// Package compass models the optional heading sensor the localization
// service can consult when triangulating. A compass is a capability: it
// either has a fresh reading or it doesn't, and the service treats a
// missing reading as "no prior" rather than an error.
package compass

import "sync"

// Compass yields the latest heading in radians, already offset-corrected,
// or reports that it has no reading yet.
type Compass interface {
	// Value returns the current heading reading, or false if none is
	// available yet.
	Value() (float64, bool)
}

// None is a Compass that never has a reading. It is the zero-dependency
// default when no physical sensor is configured.
type None struct{}

// Value always reports no reading.
func (None) Value() (float64, bool) { return 0, false }

// Set is a concurrency-safe collection of compasses whose readings are
// averaged. Replacing members is a short, lock-protected operation and
// never blocks the service loop beyond a single read.
type Set struct {
	mu        sync.Mutex
	compasses []Compass
}

// NewSet returns an empty compass set.
func NewSet() *Set {
	return &Set{}
}

// Add registers a compass in the set.
func (s *Set) Add(c Compass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compasses = append(s.compasses, c)
}

// Clear removes every compass from the set.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compasses = nil
}

// Value returns the mean of every member's current reading, skipping
// members with no reading. It reports false only when no member has one.
func (s *Set) Value() (float64, bool) {
	s.mu.Lock()
	members := make([]Compass, len(s.compasses))
	copy(members, s.compasses)
	s.mu.Unlock()

	var sum float64
	var n int
	for _, c := range members {
		if v, ok := c.Value(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Offset wraps a Compass, subtracting a fixed offset (radians) from every
// reading it yields, e.g. to correct for a sensor's mounting misalignment.
type Offset struct {
	Source  Compass
	Radians float64
}

// Value returns the wrapped compass's reading minus the configured offset.
func (o Offset) Value() (float64, bool) {
	v, ok := o.Source.Value()
	if !ok {
		return 0, false
	}
	return v - o.Radians, true
}
