package responder

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// Handle addresses a LoadingNode in the forest's arena.
type Handle int

// NoHandle is the zero reference.
const NoHandle Handle = -1

// LoadingNode is a merged pair of colliding particles together with every
// node already loaded onto either of them. All members move at a common
// velocity until the node's restitution time.
type LoadingNode struct {
	Colliders [2]int  // lowest id first
	Mass      float64 // combined mass of both sides at load time
	Rest      float64 // absolute restitution time, shared with every descendant
	Impulse   r3.Vec  // restitution impulse on Colliders[0]'s side; the other side gets its negation
	Children  []Handle
	Particles []int // transitive particle ids, sorted
	live      bool
}

// Key orders top-level nodes by restitution time, then collider pair.
type Key struct {
	Rest float64
	Pair [2]int
}

// Compare orders keys ascending.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Rest, o.Rest); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Pair[0], o.Pair[0]); c != 0 {
		return c
	}
	return cmp.Compare(k.Pair[1], o.Pair[1])
}

// Forest owns every LoadingNode. Nodes live in an arena addressed by
// handles; the top-level (uncommitted, unparented) nodes are additionally
// indexed in a slice sorted by Key. At most one live node exists per
// unordered collider pair.
type Forest struct {
	nodes  []LoadingNode
	free   []Handle
	top    []Handle
	byPair map[[2]int]Handle
}

// NewForest creates an empty forest.
func NewForest() *Forest {
	return &Forest{byPair: make(map[[2]int]Handle)}
}

// Len returns the number of top-level nodes.
func (f *Forest) Len() int { return len(f.top) }

// Live returns the number of live nodes, top-level or nested.
func (f *Forest) Live() int { return len(f.byPair) }

// Node returns the node at h. ok is false for freed or unknown handles.
func (f *Forest) Node(h Handle) (LoadingNode, bool) {
	if h < 0 || int(h) >= len(f.nodes) || !f.nodes[h].live {
		return LoadingNode{}, false
	}
	return f.nodes[h], true
}

// Key returns the ordering key of a live node.
func (f *Forest) Key(h Handle) Key {
	n := &f.nodes[h]
	return Key{Rest: n.Rest, Pair: n.Colliders}
}

// TopLevel returns the top-level handles in key order.
func (f *Forest) TopLevel() []Handle {
	return slices.Clone(f.top)
}

// Earliest returns the top-level node with the smallest key.
func (f *Forest) Earliest() (Handle, bool) {
	if len(f.top) == 0 {
		return NoHandle, false
	}
	return f.top[0], true
}

// ByPair returns the live node whose collider pair is {a, b}.
func (f *Forest) ByPair(a, b int) (Handle, bool) {
	h, ok := f.byPair[orderedPair(a, b)]
	return h, ok
}

// Covering returns the top-level node whose particle set contains id.
func (f *Forest) Covering(id int) (Handle, bool) {
	for _, h := range f.top {
		if _, found := slices.BinarySearch(f.nodes[h].Particles, id); found {
			return h, true
		}
	}
	return NoHandle, false
}

// Load creates the node for a new collision between a and b. Every top-level
// node covering either collider becomes a child of the new node, and the
// restitution time of each absorbed subtree is forced to rest.
func (f *Forest) Load(a, b int, mass, rest float64, impulse r3.Vec) (Handle, error) {
	pair := orderedPair(a, b)
	if _, exists := f.byPair[pair]; exists {
		return NoHandle, fmt.Errorf("loading forest: pair %d-%d is already loaded", pair[0], pair[1])
	}

	var children []Handle
	for _, id := range pair {
		if h, ok := f.Covering(id); ok && !slices.Contains(children, h) {
			children = append(children, h)
		}
	}

	particles := []int{pair[0], pair[1]}
	for _, c := range children {
		f.removeTop(c)
		f.adjustRest(c, rest)
		particles = append(particles, f.nodes[c].Particles...)
	}
	slices.Sort(particles)
	particles = slices.Compact(particles)

	h := f.alloc(LoadingNode{
		Colliders: pair,
		Mass:      mass,
		Rest:      rest,
		Impulse:   impulse,
		Children:  children,
		Particles: particles,
		live:      true,
	})
	f.byPair[pair] = h
	f.insertTop(h)
	return h, nil
}

// Commit removes a top-level node, returns its children to the top level
// and frees its arena slot. It returns the freed node's contents.
func (f *Forest) Commit(h Handle) (LoadingNode, error) {
	n, ok := f.Node(h)
	if !ok {
		return LoadingNode{}, fmt.Errorf("loading forest: commit of dead handle %d", h)
	}
	if !f.removeTop(h) {
		return LoadingNode{}, fmt.Errorf("loading forest: node %d-%d is not top-level", n.Colliders[0], n.Colliders[1])
	}
	for _, c := range n.Children {
		f.insertTop(c)
	}
	delete(f.byPair, n.Colliders)
	f.nodes[h] = LoadingNode{}
	f.free = append(f.free, h)
	return n, nil
}

func (f *Forest) alloc(n LoadingNode) Handle {
	if len(f.free) > 0 {
		h := f.free[len(f.free)-1]
		f.free = f.free[:len(f.free)-1]
		f.nodes[h] = n
		return h
	}
	f.nodes = append(f.nodes, n)
	return Handle(len(f.nodes) - 1)
}

func (f *Forest) adjustRest(h Handle, rest float64) {
	f.nodes[h].Rest = rest
	for _, c := range f.nodes[h].Children {
		f.adjustRest(c, rest)
	}
}

func (f *Forest) insertTop(h Handle) {
	key := f.Key(h)
	i, _ := slices.BinarySearchFunc(f.top, key, func(e Handle, k Key) int { return f.Key(e).Compare(k) })
	f.top = slices.Insert(f.top, i, h)
}

func (f *Forest) removeTop(h Handle) bool {
	key := f.Key(h)
	i, found := slices.BinarySearchFunc(f.top, key, func(e Handle, k Key) int { return f.Key(e).Compare(k) })
	if !found || f.top[i] != h {
		return false
	}
	f.top = slices.Delete(f.top, i, i+1)
	return true
}

func orderedPair(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
