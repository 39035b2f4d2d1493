package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func unitMass(int) float64 { return 1 }

func TestScanBranch_IsolatedParticle(t *testing.T) {
	// GIVEN a particle with no loads
	adj := make(Adjacency)
	mass := func(id int) float64 { return float64(id) * 1.5 }

	// WHEN its branch is scanned with no exclusion
	g := ScanBranch(adj, mass, 4, noExclusion)

	// THEN the group is the particle alone
	assert.Equal(t, Group{Mass: 6, IDs: []int{4}}, g)
}

func TestScanBranch_ExcludesTheOtherSide(t *testing.T) {
	// GIVEN the chain 1-2-3-4 plus 5 hanging off 3
	adj := make(Adjacency)
	adj.Link(1, 2)
	adj.Link(2, 3)
	adj.Link(3, 4)
	adj.Link(3, 5)

	tests := []struct {
		name    string
		id      int
		exclude int
		want    []int
	}{
		{"whole group", 1, noExclusion, []int{1, 2, 3, 4, 5}},
		{"left of 2-3", 2, 3, []int{1, 2}},
		{"right of 2-3", 3, 2, []int{3, 4, 5}},
		{"leaf side", 4, 3, []int{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ScanBranch(adj, unitMass, tt.id, tt.exclude)
			assert.Equal(t, tt.want, g.IDs)
			assert.Equal(t, float64(len(tt.want)), g.Mass)
		})
	}
}

func TestAdjacency_LinkUnlinkSymmetric(t *testing.T) {
	adj := make(Adjacency)
	adj.Link(1, 2)
	assert.True(t, adj.Linked(2, 1))
	assert.Equal(t, []int{2}, adj.Neighbors(1))
	assert.Equal(t, 1, adj.Edges())

	adj.Unlink(2, 1)
	assert.False(t, adj.Linked(1, 2))
	assert.Empty(t, adj.Neighbors(1))
	assert.Empty(t, adj)
}

func TestGroup_Contains(t *testing.T) {
	g := Group{IDs: []int{1, 4, 9}}
	assert.True(t, g.Contains(4))
	assert.False(t, g.Contains(5))
}
