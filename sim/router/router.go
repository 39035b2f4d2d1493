// Package router implements the tracker that addresses velocity updates to
// the detectors owning the affected particles.
package router

import (
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/particle"
)

const (
	// PortIn receives message.Response values.
	PortIn sim.Port = "response_in"
	// PortOut carries message.RoutedResponse values.
	PortOut sim.Port = "routed_out"
)

// Assignment maps a particle id to the detectors that track it.
type Assignment map[int][]int

// SingleDetector assigns every particle of table to detector id.
func SingleDetector(table *particle.Table, id int) Assignment {
	a := make(Assignment, table.Len())
	for _, p := range table.Particles {
		a[p.ID] = []int{id}
	}
	return a
}

// Router forwards each Response, addressed to the union of the detectors of
// its particles, with zero delay.
type Router struct {
	name     string
	assign   Assignment
	sigma    float64
	outbound []message.RoutedResponse
}

// New creates a router over a static assignment.
func New(name string, assign Assignment) *Router {
	return &Router{name: name, assign: assign, sigma: sim.Infinity}
}

// Name implements sim.Atomic.
func (r *Router) Name() string { return r.name }

// TimeAdvance implements sim.Atomic.
func (r *Router) TimeAdvance() float64 { return r.sigma }

// Detectors returns the detectors tracking any of ids, sorted and unique.
func (r *Router) Detectors(ids []int) []int {
	var out []int
	for _, id := range ids {
		out = append(out, r.assign[id]...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Output implements sim.Atomic.
func (r *Router) Output() sim.Bag {
	out := make(sim.Bag)
	for _, rr := range r.outbound {
		out.Add(PortOut, rr)
	}
	return out
}

// InternalTransition implements sim.Atomic.
func (r *Router) InternalTransition() {
	r.outbound = nil
	r.sigma = sim.Infinity
}

// ExternalTransition implements sim.Atomic.
func (r *Router) ExternalTransition(elapsed float64, in sim.Bag) {
	for _, m := range in.Messages(PortIn) {
		resp, ok := m.(message.Response)
		if !ok {
			logrus.Warnf("%s: dropping unexpected %T on %s", r.name, m, PortIn)
			continue
		}
		dst := r.Detectors(resp.ParticleIDs)
		if len(dst) == 0 {
			logrus.Warnf("%s: no detector tracks particles %v; dropping %s response", r.name, resp.ParticleIDs, resp.Purpose)
			continue
		}
		r.outbound = append(r.outbound, message.NewRoutedResponse(resp, dst))
	}
	if len(r.outbound) > 0 {
		r.sigma = 0
	} else {
		r.sigma = sim.Infinity
	}
}

// ConfluenceTransition implements sim.Atomic.
func (r *Router) ConfluenceTransition(elapsed float64, in sim.Bag) {
	r.InternalTransition()
	r.ExternalTransition(0, in)
}
