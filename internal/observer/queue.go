package observer

import (
	"sync"
	"time"

	"mazeworld/internal/world"
)

// Report is one observer position sample.
type Report struct {
	Position world.Position
	Source   string
	At       time.Time
}

// Queue buffers position reports between drive cycles. When full, the oldest
// report is dropped.
type Queue struct {
	mu       sync.Mutex
	pending  []Report
	capacity int
	dropped  uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{capacity: capacity}
}

func (q *Queue) Enqueue(r Report) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r.At.IsZero() {
		r.At = time.Now()
	}
	if len(q.pending) >= q.capacity {
		q.pending = append(q.pending[:0], q.pending[1:]...)
		q.dropped++
	}
	q.pending = append(q.pending, r)
}

func (q *Queue) Drain(max int) []Report {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	if max <= 0 || max >= len(q.pending) {
		batch := q.pending
		q.pending = nil
		return batch
	}
	batch := append([]Report(nil), q.pending[:max]...)
	q.pending = append([]Report(nil), q.pending[max:]...)
	return batch
}

// Latest drains the queue and returns the newest report.
func (q *Queue) Latest() (Report, bool) {
	batch := q.Drain(0)
	if len(batch) == 0 {
		return Report{}, false
	}
	return batch[len(batch)-1], true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
