package trace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/particle-sim/sim/message"
)

func TestFormatText(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "log",
			rec:  Record{Kind: KindLog, ParticleIDs: []int{4}, Data: []float64{1, -0.5}, Position: []float64{2.25, 0}, Purpose: message.PurposeRestitution},
			want: "[SubV_defs::logging_out: {[subV_id: 0, p_id: 4, vel: <1 -0.5>, pos: <2.25 0>, purpose: rest]}]",
		},
		{
			name: "collision",
			rec:  Record{Kind: KindCollision, ParticleIDs: []int{1, 2}, Positions: map[int][]float64{1: {-0.5}, 2: {0.5}}},
			want: "[SubV_defs::collision_out: {[(p_id:1): <-0.5>][(p_id:2): <0.5>]}]",
		},
		{
			name: "response",
			rec:  Record{Kind: KindResponse, ParticleIDs: []int{1, 2}, Data: []float64{0}, Purpose: message.PurposeLoad},
			want: "[Responder_defs::response_out: {[p_ids: <1 2>, data: <0>, purpose: load]}]",
		},
		{
			name: "impulse",
			rec:  Record{Kind: KindImpulse, ParticleIDs: []int{3}, Data: []float64{0.75}, Purpose: message.PurposeImpulse},
			want: "[RandomImpulse_defs::impulse_out: {[p_ids: <3>, data: <0.75>, purpose: ri]}]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatText(tt.rec))
		})
	}
}

func TestTextWriter_TimeHeaderOnlyWhenClockMoves(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf)

	require.NoError(t, tw.Write(Record{Time: 0, Kind: KindImpulse, ParticleIDs: []int{1}, Data: []float64{1}, Purpose: message.PurposeImpulse}))
	require.NoError(t, tw.Write(Record{Time: 0, Kind: KindImpulse, ParticleIDs: []int{2}, Data: []float64{1}, Purpose: message.PurposeImpulse}))
	require.NoError(t, tw.Write(Record{Time: 4.5, Kind: KindResponse, ParticleIDs: []int{1}, Data: []float64{0}, Purpose: message.PurposeLoad}))
	require.NoError(t, tw.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "0", lines[0])
	assert.Equal(t, "4.5", lines[3])
}

func TestParseText_RoundTripsLogRecords(t *testing.T) {
	// GIVEN a text log mixing detector log records with other messages
	logs := []Record{
		{Time: 0, Kind: KindLog, ParticleIDs: []int{1}, Data: []float64{1, 0}, Position: []float64{-5, 0}, Purpose: message.PurposeInit},
		{Time: 0, Kind: KindLog, ParticleIDs: []int{2}, Data: []float64{-1, 0}, Position: []float64{5, 0}, Purpose: message.PurposeInit},
		{Time: 4.5, Kind: KindLog, DetectorID: 2, ParticleIDs: []int{1}, Data: []float64{0, 0}, Position: []float64{-0.5, 1e-3}, Purpose: message.PurposeLoad},
	}
	var buf bytes.Buffer
	tw := NewTextWriter(&buf)
	require.NoError(t, tw.Write(logs[0]))
	require.NoError(t, tw.Write(logs[1]))
	require.NoError(t, tw.Write(Record{Time: 4.5, Kind: KindCollision, ParticleIDs: []int{1, 2}, Positions: map[int][]float64{1: {-0.5, 0}, 2: {0.5, 0}}}))
	require.NoError(t, tw.Write(logs[2]))
	require.NoError(t, tw.Close())

	// WHEN it is parsed
	got, err := ParseText(&buf)

	// THEN exactly the log records come back
	require.NoError(t, err)
	assert.Equal(t, logs, got)
}

func TestParseText_BadNumber(t *testing.T) {
	in := "1\n[SubV_defs::logging_out: {[subV_id: 0, p_id: 1, vel: <x>, pos: <0>, purpose: ri]}]\n"
	_, err := ParseText(strings.NewReader(in))
	assert.ErrorContains(t, err, "line 2")
}
