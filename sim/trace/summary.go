package trace

import "github.com/inference-sim/particle-sim/sim/message"

// Summary aggregates statistics over a sequence of records.
type Summary struct {
	Records      int
	ByKind       map[Kind]int
	ByPurpose    map[message.Purpose]int // responses only
	Collisions   int
	Impulses     int
	PerParticle  map[int]int // log records per particle
	LastTime     float64
	DistinctPair int // distinct colliding pairs
}

// Summarize computes aggregate statistics. Safe for nil or empty input.
func Summarize(records []Record) *Summary {
	s := &Summary{
		ByKind:      make(map[Kind]int),
		ByPurpose:   make(map[message.Purpose]int),
		PerParticle: make(map[int]int),
	}
	pairs := make(map[[2]int]struct{})
	for _, rec := range records {
		s.Records++
		s.ByKind[rec.Kind]++
		if rec.Time > s.LastTime {
			s.LastTime = rec.Time
		}
		switch rec.Kind {
		case KindResponse:
			s.ByPurpose[rec.Purpose]++
		case KindCollision:
			s.Collisions++
			if len(rec.ParticleIDs) == 2 {
				pairs[[2]int{rec.ParticleIDs[0], rec.ParticleIDs[1]}] = struct{}{}
			}
		case KindImpulse:
			s.Impulses++
		case KindLog:
			for _, id := range rec.ParticleIDs {
				s.PerParticle[id]++
			}
		}
	}
	s.DistinctPair = len(pairs)
	return s
}
