// Package queue holds pending entity ids ordered by priority. Higher
// priority is served first; among equal priorities the earliest enqueued id
// wins, so equally urgent requests are served fairly.
package queue

import "container/heap"

type item struct {
	id       string
	priority int
	seq      uint64
	index    int // position in the heap, maintained by heap.Interface
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a priority queue of entity ids. All operations are synchronous
// and never block.
type Queue struct {
	heap    itemHeap
	byID    map[string]*item
	nextSeq uint64
}

func New() *Queue {
	return &Queue{byID: make(map[string]*item)}
}

// Enqueue inserts id with the given priority. Enqueueing an id that is
// already present updates its priority in place.
func (q *Queue) Enqueue(id string, priority int) {
	if it, ok := q.byID[id]; ok {
		it.priority = priority
		heap.Fix(&q.heap, it.index)
		return
	}
	q.nextSeq++
	it := &item{id: id, priority: priority, seq: q.nextSeq}
	q.byID[id] = it
	heap.Push(&q.heap, it)
}

// DequeueBest removes and returns the highest-priority id accepted by the
// predicate, or ("", false) if none qualifies. Ids rejected by the
// predicate keep their place.
func (q *Queue) DequeueBest(accept func(id string) bool) (string, bool) {
	var skipped []*item
	defer func() {
		for _, it := range skipped {
			heap.Push(&q.heap, it)
		}
	}()

	for q.heap.Len() > 0 {
		it := heap.Pop(&q.heap).(*item)
		if accept == nil || accept(it.id) {
			delete(q.byID, it.id)
			return it.id, true
		}
		skipped = append(skipped, it)
	}
	return "", false
}

// Remove drops id from the queue if present.
func (q *Queue) Remove(id string) {
	it, ok := q.byID[id]
	if !ok {
		return
	}
	delete(q.byID, id)
	heap.Remove(&q.heap, it.index)
}

func (q *Queue) Contains(id string) bool {
	_, ok := q.byID[id]
	return ok
}

func (q *Queue) Len() int {
	return q.heap.Len()
}
