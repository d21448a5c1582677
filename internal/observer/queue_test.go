package observer

import (
	"testing"

	"mazeworld/internal/world"
)

func sampleReport(x float64) Report {
	return Report{Position: world.Position{X: x, Y: -x}, Source: "test"}
}

func TestQueueDrainReleasesReferences(t *testing.T) {
	q := NewQueue(8)

	for i := 0; i < 4; i++ {
		q.Enqueue(sampleReport(float64(i)))
	}

	batch := q.Drain(0)
	if len(batch) != 4 {
		t.Fatalf("expected 4 reports in batch, got %d", len(batch))
	}
	if q.pending != nil {
		t.Fatalf("expected queue storage to be reset, got len=%d cap=%d", len(q.pending), cap(q.pending))
	}
	if batch[0].At.IsZero() {
		t.Fatalf("expected enqueue to stamp reports")
	}

	q.Enqueue(sampleReport(10))
	q.Enqueue(sampleReport(11))
	q.Enqueue(sampleReport(12))

	batch = q.Drain(2)
	if len(batch) != 2 {
		t.Fatalf("expected 2 reports in partial batch, got %d", len(batch))
	}
	if len(q.pending) != 1 {
		t.Fatalf("expected 1 report to remain in queue, got %d", len(q.pending))
	}
	if q.pending[0].Position.X != 12 {
		t.Fatalf("expected remaining report to be x=12, got %v", q.pending[0].Position)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 5; i++ {
		q.Enqueue(sampleReport(float64(i)))
	}
	if q.Len() != 3 || q.Dropped() != 2 {
		t.Fatalf("len=%d dropped=%d, want 3 and 2", q.Len(), q.Dropped())
	}
	latest, ok := q.Latest()
	if !ok || latest.Position.X != 4 {
		t.Fatalf("latest = %+v %v, want x=4", latest, ok)
	}
	if q.Len() != 0 {
		t.Fatalf("latest should drain the queue")
	}
	if _, ok := q.Latest(); ok {
		t.Fatalf("empty queue should report no latest")
	}
}
