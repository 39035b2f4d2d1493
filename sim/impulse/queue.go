package impulse

// arrival is the next scheduled impulse for one particle.
type arrival struct {
	id   int
	time float64
}

// ArrivalQueue implements heap.Interface and orders arrivals by time, then id.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type ArrivalQueue []arrival

func (q ArrivalQueue) Len() int { return len(q) }

func (q ArrivalQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].id < q[j].id
}

func (q ArrivalQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *ArrivalQueue) Push(x any) {
	*q = append(*q, x.(arrival))
}

func (q *ArrivalQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}
