// Package trace records the messages leaving the simulator and writes them
// as a text log, JSON lines or SQLite rows. It also rebuilds particle
// positions at chosen instants from a recorded log.
package trace

import (
	"maps"
	"slices"

	"github.com/inference-sim/particle-sim/sim/message"
)

// Kind identifies the message type a Record was built from.
type Kind string

const (
	KindLog       Kind = "log"
	KindResponse  Kind = "response"
	KindImpulse   Kind = "impulse"
	KindCollision Kind = "collision"
)

// Record is the flat, serializable form of one emitted message.
type Record struct {
	Time        float64           `json:"time"`
	Kind        Kind              `json:"kind"`
	DetectorID  int               `json:"detector_id,omitempty"`
	ParticleIDs []int             `json:"particle_ids"`
	Data        []float64         `json:"data,omitempty"`     // velocity, or the impulse vector
	Position    []float64         `json:"position,omitempty"` // log records only
	Positions   map[int][]float64 `json:"positions,omitempty"`
	Purpose     message.Purpose   `json:"purpose,omitempty"`
}

// FromMessage converts a message emitted at time t. ok is false for
// message types that are not recorded.
func FromMessage(t float64, msg any) (Record, bool) {
	switch m := msg.(type) {
	case message.LogRecord:
		return Record{
			Time:        t,
			Kind:        KindLog,
			DetectorID:  m.DetectorID,
			ParticleIDs: []int{m.ParticleID},
			Data:        slices.Clone(m.Velocity),
			Position:    slices.Clone(m.Position),
			Purpose:     m.Purpose,
		}, true
	case message.Response:
		return Record{
			Time:        t,
			Kind:        KindResponse,
			ParticleIDs: slices.Clone(m.ParticleIDs),
			Data:        slices.Clone(m.Data),
			Positions:   maps.Clone(m.Positions),
			Purpose:     m.Purpose,
		}, true
	case message.RoutedResponse:
		return FromMessage(t, m.Response)
	case message.Impulse:
		return Record{
			Time:        t,
			Kind:        KindImpulse,
			ParticleIDs: slices.Clone(m.ParticleIDs),
			Data:        slices.Clone(m.Data),
			Purpose:     m.Purpose,
		}, true
	case message.Collision:
		return Record{
			Time:        t,
			Kind:        KindCollision,
			ParticleIDs: slices.Sorted(maps.Keys(m.Positions)),
			Positions:   maps.Clone(m.Positions),
		}, true
	default:
		return Record{}, false
	}
}
