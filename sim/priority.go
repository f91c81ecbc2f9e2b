package sim

import "fmt"

// Priority is the urgency class of a patient: 1 is the most urgent, 5 the least.
type Priority int

const (
	// HighestPriority is the most urgent lane.
	HighestPriority Priority = 1
	// LowestPriority is the least urgent lane.
	LowestPriority Priority = 5
	// NumPriorities is the number of dispatch lanes.
	NumPriorities = int(LowestPriority - HighestPriority + 1)
)

// Valid reports whether p is one of the five recognized priority levels.
func (p Priority) Valid() bool {
	return p >= HighestPriority && p <= LowestPriority
}

// lane maps a priority onto its zero-based lane index.
func (p Priority) lane() int {
	return int(p - HighestPriority)
}

func (p Priority) String() string {
	return fmt.Sprintf("P%d", int(p))
}

// ParsePriority converts an integer read from an external source into a
// Priority, rejecting anything outside [1, 5].
func ParsePriority(v int) (Priority, error) {
	p := Priority(v)
	if !p.Valid() {
		return 0, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidPriority, v, HighestPriority, LowestPriority)
	}
	return p, nil
}

// Filter selects which dispatch lanes a dequeue may read from.
//
// The zero value is BestAvailable: lanes are scanned from priority 1 to 5 and
// the head of the first non-empty lane is returned. There is no cross-lane
// fairness, so sustained urgent load can starve the lower lanes; only added
// service capacity relieves that.
type Filter struct {
	exact Priority
}

// BestAvailable returns the filter used by service workers.
func BestAvailable() Filter {
	return Filter{}
}

// ExactPriority returns a filter that only reads lane p.
func ExactPriority(p Priority) Filter {
	return Filter{exact: p}
}

// IsBestAvailable reports whether f scans every lane.
func (f Filter) IsBestAvailable() bool {
	return f.exact == 0
}

func (f Filter) String() string {
	if f.IsBestAvailable() {
		return "best-available"
	}
	return "exact-" + f.exact.String()
}
