package detector

import "container/heap"

// Pair is an unordered particle pair, stored lowest id first.
type Pair struct {
	Lo, Hi int
}

// MakePair normalizes an unordered pair.
func MakePair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Lo: a, Hi: b}
}

type cacheEntry struct {
	pair Pair
	time float64
}

// entryHeap orders entries by (time, Lo, Hi). Implements heap.Interface.
type entryHeap []cacheEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	if h[i].pair.Lo != h[j].pair.Lo {
		return h[i].pair.Lo < h[j].pair.Lo
	}
	return h[i].pair.Hi < h[j].pair.Hi
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(cacheEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Cache maps unordered pairs to absolute predicted collision times.
// The authoritative entries live in a map; a min-heap indexes them and is
// cleaned lazily, dropping heap entries whose time no longer matches the map.
type Cache struct {
	times map[Pair]float64
	order entryHeap
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{times: make(map[Pair]float64)}
}

// Set records the collision time of a pair.
func (c *Cache) Set(p Pair, t float64) {
	if old, ok := c.times[p]; ok && old == t {
		return
	}
	c.times[p] = t
	heap.Push(&c.order, cacheEntry{pair: p, time: t})
	if len(c.order) > 4*len(c.times)+64 {
		c.compact()
	}
}

// compact rebuilds the heap from the live entries.
func (c *Cache) compact() {
	c.order = c.order[:0]
	for p, t := range c.times {
		c.order = append(c.order, cacheEntry{pair: p, time: t})
	}
	heap.Init(&c.order)
}

// Delete removes a pair.
func (c *Cache) Delete(p Pair) {
	delete(c.times, p)
}

// Get returns the cached time of a pair.
func (c *Cache) Get(p Pair) (float64, bool) {
	t, ok := c.times[p]
	return t, ok
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return len(c.times) }

// Min returns the pair with the earliest collision time without removing it.
func (c *Cache) Min() (Pair, float64, bool) {
	for c.order.Len() > 0 {
		top := c.order[0]
		if t, ok := c.times[top.pair]; ok && t == top.time {
			return top.pair, top.time, true
		}
		heap.Pop(&c.order)
	}
	return Pair{}, 0, false
}
