// Package ranges provides a set of closed numeric intervals used to track
// which spans of presentation time are materialized in a playback sink.
package ranges

// Range is a closed interval [Start, End].
type Range struct {
	Start float64
	End   float64
}

// Contains reports whether t falls inside the closed interval.
func (r Range) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// Set is an ordered collection of closed ranges. Ranges may overlap or be
// disjoint; the set does not coalesce them, it only answers containment.
type Set struct {
	ranges []Range
}

// New returns an empty set.
func New() *Set {
	return &Set{}
}

// Push appends the closed range [start, end] to the set.
func (s *Set) Push(start, end float64) {
	s.ranges = append(s.ranges, Range{Start: start, End: end})
}

// Contains reports whether t falls inside at least one pushed range.
func (s *Set) Contains(t float64) bool {
	for _, r := range s.ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// Len returns the number of pushed ranges.
func (s *Set) Len() int {
	return len(s.ranges)
}

// Ranges returns the pushed ranges in insertion order.
func (s *Set) Ranges() []Range {
	return s.ranges
}
