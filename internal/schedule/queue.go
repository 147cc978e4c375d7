package schedule

import "container/heap"

// immediateEntry pairs an action with its insertion sequence so equal
// priorities drain strictly FIFO.
type immediateEntry struct {
	action *Action
	seq    int64
}

// immediateQueue is a priority queue ordered by (priority descending,
// insertion order ascending). The ordering is the determinism law for
// same-tick execution: re-running the same schedule sequence yields the
// identical drain order.
type immediateQueue struct {
	entries []immediateEntry
}

var _ heap.Interface = (*immediateQueue)(nil)

func (q *immediateQueue) Len() int { return len(q.entries) }

func (q *immediateQueue) Less(i, j int) bool {
	a, b := q.entries[i], q.entries[j]
	if a.action.Priority != b.action.Priority {
		return a.action.Priority > b.action.Priority
	}
	return a.seq < b.seq
}

func (q *immediateQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
}

func (q *immediateQueue) Push(x any) {
	q.entries = append(q.entries, x.(immediateEntry))
}

func (q *immediateQueue) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = immediateEntry{} // release the Action pointer
	q.entries = old[:n-1]
	return e
}

func (q *immediateQueue) push(a *Action, seq int64) {
	heap.Push(q, immediateEntry{action: a, seq: seq})
}

func (q *immediateQueue) pop() (*Action, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(q).(immediateEntry)
	return e.action, true
}
