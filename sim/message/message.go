// Package message defines the immutable payloads exchanged between the
// simulation components. Constructors copy their slice and map arguments so a
// message never aliases its sender's state.
package message

import (
	"maps"
	"slices"
)

// Purpose tags a Response with the event that produced it.
type Purpose string

const (
	PurposeImpulse     Purpose = "ri"   // velocity change after a random impulse
	PurposeLoad        Purpose = "load" // common velocity after a collision
	PurposeRestitution Purpose = "rest" // velocity after deferred restitution
	PurposeInit        Purpose = "init" // initial state snapshot (log records only)
)

// Impulse is a random momentum kick for one or more particles.
type Impulse struct {
	Data        []float64
	ParticleIDs []int
	Purpose     Purpose
}

// NewImpulse builds an Impulse.
func NewImpulse(data []float64, ids []int, purpose Purpose) Impulse {
	return Impulse{Data: slices.Clone(data), ParticleIDs: slices.Clone(ids), Purpose: purpose}
}

// Response carries a new velocity for a group of particles.
type Response struct {
	Data        []float64
	ParticleIDs []int
	Purpose     Purpose
	Positions   map[int][]float64 // optional measured positions
}

// NewResponse builds a Response. positions may be nil.
func NewResponse(data []float64, ids []int, purpose Purpose, positions map[int][]float64) Response {
	return Response{
		Data:        slices.Clone(data),
		ParticleIDs: slices.Clone(ids),
		Purpose:     purpose,
		Positions:   clonePositions(positions),
	}
}

// Collision announces a predicted contact between two particles and their
// positions at that instant.
type Collision struct {
	Positions map[int][]float64
}

// NewCollision builds a Collision between particles a and b.
func NewCollision(a int, posA []float64, b int, posB []float64) Collision {
	return Collision{Positions: map[int][]float64{
		a: slices.Clone(posA),
		b: slices.Clone(posB),
	}}
}

// Pair returns the two particle ids, lowest first. ok is false unless the
// collision has exactly two entries.
func (c Collision) Pair() (a, b int, ok bool) {
	if len(c.Positions) != 2 {
		return 0, 0, false
	}
	ids := slices.Sorted(maps.Keys(c.Positions))
	return ids[0], ids[1], true
}

// RoutedResponse is a Response addressed to a set of detectors.
type RoutedResponse struct {
	Response
	DetectorIDs []int
}

// NewRoutedResponse wraps a Response with its destination detectors.
func NewRoutedResponse(r Response, detectors []int) RoutedResponse {
	return RoutedResponse{Response: r, DetectorIDs: slices.Clone(detectors)}
}

// AddressedTo reports whether detector id is a destination.
func (r RoutedResponse) AddressedTo(id int) bool {
	return slices.Contains(r.DetectorIDs, id)
}

// LogRecord is a per-particle state snapshot emitted by a detector.
type LogRecord struct {
	DetectorID int
	ParticleID int
	Velocity   []float64
	Position   []float64
	Purpose    Purpose
}

func clonePositions(in map[int][]float64) map[int][]float64 {
	if in == nil {
		return nil
	}
	out := make(map[int][]float64, len(in))
	for id, p := range in {
		out[id] = slices.Clone(p)
	}
	return out
}
