package sim

import (
	"math"
	"slices"
)

// Infinity is the time advance of a passive model.
var Infinity = math.Inf(1)

// Port names an input or output port of a model.
type Port string

// Bag carries the messages produced on, or delivered to, each port in one step.
type Bag map[Port][]any

// Add appends messages to the given port.
func (b Bag) Add(p Port, msgs ...any) {
	if len(msgs) == 0 {
		return
	}
	b[p] = append(b[p], msgs...)
}

// Messages returns the messages on port p (nil if none).
func (b Bag) Messages(p Port) []any {
	if b == nil {
		return nil
	}
	return b[p]
}

// Empty reports whether the bag holds no messages on any port.
func (b Bag) Empty() bool {
	for _, msgs := range b {
		if len(msgs) > 0 {
			return false
		}
	}
	return true
}

// Ports returns the bag's non-empty ports in sorted order.
func (b Bag) Ports() []Port {
	ports := make([]Port, 0, len(b))
	for p, msgs := range b {
		if len(msgs) > 0 {
			ports = append(ports, p)
		}
	}
	slices.Sort(ports)
	return ports
}

// Atomic is a DEVS atomic model.
//
// TimeAdvance returns σ, the delay until the next internal event (Infinity
// when passive). Output is called before InternalTransition or
// ConfluenceTransition in the same instant and must not mutate state.
type Atomic interface {
	Name() string
	TimeAdvance() float64
	Output() Bag
	InternalTransition()
	ExternalTransition(elapsed float64, in Bag)
	ConfluenceTransition(elapsed float64, in Bag)
}
