// Package queue holds the ordered paste queue of clip ids.
package queue

import (
	"errors"
	"sync"
)

// ErrEmpty is returned when the queue has no items.
var ErrEmpty = errors.New("paste queue is empty")

// Queue is an ordered set of clip ids. It is safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	ids []int64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Toggle appends id when absent and removes it when present. It reports
// whether id is queued afterwards.
func (q *Queue) Toggle(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.index(id); i >= 0 {
		q.ids = append(q.ids[:i], q.ids[i+1:]...)
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index(id) >= 0
}

// Position returns the 1-based position of id, or 0 when not queued.
func (q *Queue) Position(id int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index(id) + 1
}

// Items returns a copy of the queued ids in order.
func (q *Queue) Items() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int64, len(q.ids))
	copy(out, q.ids)
	return out
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Front returns the first id without removing it.
func (q *Queue) Front() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return 0, ErrEmpty
	}
	return q.ids[0], nil
}

// PopIf removes the front id if it still equals id. It reports whether it did.
func (q *Queue) PopIf(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 || q.ids[0] != id {
		return false
	}
	q.ids = q.ids[1:]
	return true
}

// Pop removes and returns the first id.
func (q *Queue) Pop() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return 0, ErrEmpty
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

// Remove drops id from the queue. It reports whether id was queued.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.index(id)
	if i < 0 {
		return false
	}
	q.ids = append(q.ids[:i], q.ids[i+1:]...)
	return true
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.ids = nil
	q.mu.Unlock()
}

func (q *Queue) index(id int64) int {
	for i, v := range q.ids {
		if v == id {
			return i
		}
	}
	return -1
}
