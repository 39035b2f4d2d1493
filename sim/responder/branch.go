package responder

import (
	"slices"
)

// Adjacency is the symmetric "loaded onto" relation between particles. An
// edge a–b exists exactly while a LoadingNode with colliders {a, b} is live.
type Adjacency map[int]map[int]struct{}

// Link adds the edge a–b.
func (adj Adjacency) Link(a, b int) {
	if adj[a] == nil {
		adj[a] = make(map[int]struct{})
	}
	if adj[b] == nil {
		adj[b] = make(map[int]struct{})
	}
	adj[a][b] = struct{}{}
	adj[b][a] = struct{}{}
}

// Unlink removes the edge a–b.
func (adj Adjacency) Unlink(a, b int) {
	delete(adj[a], b)
	delete(adj[b], a)
	if len(adj[a]) == 0 {
		delete(adj, a)
	}
	if len(adj[b]) == 0 {
		delete(adj, b)
	}
}

// Linked reports whether the edge a–b exists.
func (adj Adjacency) Linked(a, b int) bool {
	_, ok := adj[a][b]
	return ok
}

// Neighbors returns the particles directly loaded onto id, sorted.
func (adj Adjacency) Neighbors(id int) []int {
	out := make([]int, 0, len(adj[id]))
	for n := range adj[id] {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Edges returns the number of undirected edges.
func (adj Adjacency) Edges() int {
	n := 0
	for _, ns := range adj {
		n += len(ns)
	}
	return n / 2
}

// noExclusion is passed to ScanBranch when no edge is cut.
const noExclusion = -1 << 63

// Group is a set of particles that currently move together.
type Group struct {
	Mass float64
	IDs  []int // sorted
}

// Contains reports whether id is a member.
func (g Group) Contains(id int) bool {
	_, found := slices.BinarySearch(g.IDs, id)
	return found
}

// ScanBranch returns the connected component of id in adj, never entering
// exclude. Since the relation is a forest, cutting exclude from the
// traversal isolates the branch on id's side of the edge id–exclude.
func ScanBranch(adj Adjacency, mass func(int) float64, id, exclude int) Group {
	visited := map[int]struct{}{id: {}}
	stack := []int{id}
	g := Group{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		g.IDs = append(g.IDs, cur)
		g.Mass += mass(cur)
		for n := range adj[cur] {
			if n == exclude {
				continue
			}
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			stack = append(stack, n)
		}
	}
	slices.Sort(g.IDs)
	return g
}
