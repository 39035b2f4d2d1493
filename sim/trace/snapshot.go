package trace

import (
	"fmt"
	"slices"
)

// Snapshot holds every known particle position at one instant.
type Snapshot struct {
	Time      float64           `json:"time"`
	Positions map[int][]float64 `json:"positions"`
}

type kinematic struct {
	updated float64
	pos     []float64
	vel     []float64
}

// Quantize replays the detector log records and extrapolates each particle's
// last known state to every requested time. Records must be in emission
// order; times are visited in ascending order.
func Quantize(records []Record, times []float64) []Snapshot {
	times = slices.Clone(times)
	slices.Sort(times)

	state := make(map[int]kinematic)
	out := make([]Snapshot, 0, len(times))
	i := 0
	for _, t := range times {
		for ; i < len(records) && records[i].Time <= t; i++ {
			rec := records[i]
			if rec.Kind != KindLog || len(rec.ParticleIDs) == 0 {
				continue
			}
			state[rec.ParticleIDs[0]] = kinematic{updated: rec.Time, pos: rec.Position, vel: rec.Data}
		}
		snap := Snapshot{Time: t, Positions: make(map[int][]float64, len(state))}
		for id, k := range state {
			p := make([]float64, len(k.pos))
			for d := range p {
				v := 0.0
				if d < len(k.vel) {
					v = k.vel[d]
				}
				p[d] = k.pos[d] + v*(t-k.updated)
			}
			snap.Positions[id] = p
		}
		out = append(out, snap)
	}
	return out
}

// Steps returns start, start+step, ... up to and including end.
func Steps(start, end, step float64) ([]float64, error) {
	switch {
	case start > end:
		return nil, fmt.Errorf("snapshot start %g is after end %g", start, end)
	case step <= 0:
		return nil, fmt.Errorf("snapshot step must be positive, got %g", step)
	}
	var out []float64
	for n := 0; ; n++ {
		t := start + float64(n)*step
		if t > end {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
