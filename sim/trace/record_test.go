package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/message"
)

func TestFromMessage(t *testing.T) {
	resp := message.NewResponse([]float64{0, 1}, []int{2, 5}, message.PurposeLoad, map[int][]float64{2: {0, 0}, 5: {1, 0}})
	tests := []struct {
		name string
		msg  any
		want Record
	}{
		{
			name: "log",
			msg:  message.LogRecord{DetectorID: 3, ParticleID: 7, Velocity: []float64{1, 2}, Position: []float64{3, 4}, Purpose: message.PurposeInit},
			want: Record{Time: 1.5, Kind: KindLog, DetectorID: 3, ParticleIDs: []int{7}, Data: []float64{1, 2}, Position: []float64{3, 4}, Purpose: message.PurposeInit},
		},
		{
			name: "response",
			msg:  resp,
			want: Record{Time: 1.5, Kind: KindResponse, ParticleIDs: []int{2, 5}, Data: []float64{0, 1}, Positions: resp.Positions, Purpose: message.PurposeLoad},
		},
		{
			name: "routed response",
			msg:  message.NewRoutedResponse(resp, []int{0}),
			want: Record{Time: 1.5, Kind: KindResponse, ParticleIDs: []int{2, 5}, Data: []float64{0, 1}, Positions: resp.Positions, Purpose: message.PurposeLoad},
		},
		{
			name: "impulse",
			msg:  message.NewImpulse([]float64{-0.5, 0}, []int{9}, message.PurposeImpulse),
			want: Record{Time: 1.5, Kind: KindImpulse, ParticleIDs: []int{9}, Data: []float64{-0.5, 0}, Purpose: message.PurposeImpulse},
		},
		{
			name: "collision",
			msg:  message.NewCollision(8, []float64{1, 1}, 3, []float64{0, 1}),
			want: Record{Time: 1.5, Kind: KindCollision, ParticleIDs: []int{3, 8}, Positions: map[int][]float64{3: {0, 1}, 8: {1, 1}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromMessage(1.5, tt.msg)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := FromMessage(0, "unsupported")
	assert.False(t, ok)
}

type memWriter struct {
	recs     []Record
	writeErr error
	closeErr error
	closed   bool
}

func (m *memWriter) Write(r Record) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.recs = append(m.recs, r)
	return nil
}

func (m *memWriter) Close() error {
	m.closed = true
	return m.closeErr
}

func TestRecorder_SinkFansOutToWriters(t *testing.T) {
	// GIVEN a recorder keeping records with two writers
	a, b := &memWriter{}, &memWriter{}
	rec := NewRecorder(true, a, b)

	// WHEN the kernel delivers a batch including an unrecorded value
	sink := rec.Sink()
	sink(2, "impulses", []any{message.NewImpulse([]float64{1}, []int{1}, message.PurposeImpulse), 42})
	sink(3, "collisions", []any{message.NewCollision(1, []float64{0}, 2, []float64{1})})

	// THEN both writers and the in-memory list see the two records in order
	require.Len(t, rec.Records(), 2)
	assert.Equal(t, KindImpulse, rec.Records()[0].Kind)
	assert.Equal(t, KindCollision, rec.Records()[1].Kind)
	assert.Equal(t, rec.Records(), a.recs)
	assert.Equal(t, rec.Records(), b.recs)
	assert.NoError(t, rec.Err())
	assert.NoError(t, rec.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestRecorder_KeepsFirstWriteErrorAndJoinsCloseErrors(t *testing.T) {
	errWrite := errors.New("disk full")
	errClose := errors.New("close failed")
	failing := &memWriter{writeErr: errWrite, closeErr: errClose}
	healthy := &memWriter{}
	rec := NewRecorder(false, failing, healthy)

	rec.Record(Record{Kind: KindLog})
	rec.Record(Record{Kind: KindLog})

	assert.Empty(t, rec.Records())
	assert.Len(t, healthy.recs, 2)
	assert.ErrorIs(t, rec.Err(), errWrite)
	err := rec.Close()
	assert.ErrorIs(t, err, errWrite)
	assert.ErrorIs(t, err, errClose)
}

func TestRecorder_SinkType(t *testing.T) {
	var _ sim.OutputSink = NewRecorder(false).Sink()
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{Time: 0, Kind: KindLog, ParticleIDs: []int{1}, Purpose: message.PurposeInit},
		{Time: 0, Kind: KindLog, ParticleIDs: []int{2}, Purpose: message.PurposeInit},
		{Time: 1, Kind: KindImpulse, ParticleIDs: []int{1}},
		{Time: 2, Kind: KindCollision, ParticleIDs: []int{1, 2}},
		{Time: 2, Kind: KindResponse, ParticleIDs: []int{1, 2}, Purpose: message.PurposeLoad},
		{Time: 2, Kind: KindLog, ParticleIDs: []int{1}, Purpose: message.PurposeLoad},
		{Time: 2.1, Kind: KindResponse, ParticleIDs: []int{1}, Purpose: message.PurposeRestitution},
		{Time: 5, Kind: KindCollision, ParticleIDs: []int{1, 2}},
	}

	s := Summarize(records)

	assert.Equal(t, 8, s.Records)
	assert.Equal(t, map[Kind]int{KindLog: 3, KindImpulse: 1, KindCollision: 2, KindResponse: 2}, s.ByKind)
	assert.Equal(t, map[message.Purpose]int{message.PurposeLoad: 1, message.PurposeRestitution: 1}, s.ByPurpose)
	assert.Equal(t, 2, s.Collisions)
	assert.Equal(t, 1, s.Impulses)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, s.PerParticle)
	assert.Equal(t, 5.0, s.LastTime)
	assert.Equal(t, 1, s.DistinctPair)

	empty := Summarize(nil)
	assert.Zero(t, empty.Records)
	assert.NotNil(t, empty.ByKind)
}
