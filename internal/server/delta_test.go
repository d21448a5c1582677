package server

import (
	"testing"

	"mazeworld/internal/maze"
)

func TestDeltaAccumulatorKeepsEarliestBefore(t *testing.T) {
	accumulator := newDeltaAccumulator()
	block := maze.BlockCoord{X: 3, Y: 4}
	cell := maze.CellCoord{X: 1, Y: 2}

	accumulator.add(maze.WallChange{Block: block, Cell: cell, Before: maze.Up | maze.Left, After: maze.Up})
	accumulator.add(maze.WallChange{Block: block, Cell: cell, Before: maze.Up, After: 0})

	stored := accumulator.data[block][cell]
	if stored.Before != maze.Up|maze.Left {
		t.Fatalf("expected original before to be preserved, got %v", stored.Before)
	}
	if stored.After != 0 {
		t.Fatalf("expected latest after to win, got %v", stored.After)
	}
	if accumulator.len() != 1 {
		t.Fatalf("expected 1 pending cell, got %d", accumulator.len())
	}
}

func TestDeltaAccumulatorFlushProducesNetworkDeltas(t *testing.T) {
	accumulator := newDeltaAccumulator()

	blockA := maze.BlockCoord{X: 1, Y: 2}
	blockB := maze.BlockCoord{X: -3, Y: 4}
	accumulator.add(maze.WallChange{Block: blockA, Cell: maze.CellCoord{X: 2, Y: 1}, Before: maze.Up | maze.Left | maze.Down, After: maze.Up | maze.Left})
	accumulator.add(maze.WallChange{Block: blockA, Cell: maze.CellCoord{X: 1, Y: 1}, Before: maze.Left | maze.Down, After: maze.Down})
	accumulator.add(maze.WallChange{Block: blockB, Cell: maze.CellCoord{X: 4, Y: 4}, Before: maze.Right, After: 0})

	seq := uint64(100)
	deltas := accumulator.flush("server-123", &seq)

	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	if seq != 102 {
		t.Fatalf("expected sequence pointer advanced to 102, got %d", seq)
	}
	if len(accumulator.data) != 0 {
		t.Fatalf("expected accumulator to reset after flush, but still has %d entries", len(accumulator.data))
	}

	if deltas[0].Block != blockB || deltas[0].Seq != 100 {
		t.Fatalf("first delta = %v seq %d, want %v seq 100", deltas[0].Block, deltas[0].Seq, blockB)
	}
	if deltas[1].Block != blockA || deltas[1].Seq != 101 {
		t.Fatalf("second delta = %v seq %d, want %v seq 101", deltas[1].Block, deltas[1].Seq, blockA)
	}
	for _, delta := range deltas {
		if delta.ServerID != "server-123" {
			t.Errorf("unexpected server id %q", delta.ServerID)
		}
		if delta.Timestamp.IsZero() {
			t.Errorf("expected timestamp to be set")
		}
	}
	cells := deltas[1].Cells
	if len(cells) != 2 || cells[0].X != 1 || cells[1].X != 2 {
		t.Fatalf("expected cells ordered by x within a row, got %+v", cells)
	}
	if cells[0].Before != int(maze.Left|maze.Down) || cells[0].After != int(maze.Down) {
		t.Fatalf("unexpected cell change %+v", cells[0])
	}
}

func TestDeltaAccumulatorSkipsNetNoops(t *testing.T) {
	accumulator := newDeltaAccumulator()
	block := maze.BlockCoord{}
	cell := maze.CellCoord{X: 1, Y: 1}
	accumulator.add(maze.WallChange{Block: block, Cell: cell, Before: maze.Left, After: 0})
	accumulator.add(maze.WallChange{Block: block, Cell: cell, Before: 0, After: maze.Left})

	seq := uint64(7)
	if deltas := accumulator.flush("s", &seq); len(deltas) != 0 {
		t.Fatalf("expected reverted wall to produce no delta, got %+v", deltas)
	}
	if seq != 7 {
		t.Fatalf("expected sequence unchanged, got %d", seq)
	}
}

func TestDeltaAccumulatorDropAndEmptyFlush(t *testing.T) {
	accumulator := newDeltaAccumulator()
	block := maze.BlockCoord{X: 9}
	accumulator.add(maze.WallChange{Block: block, Cell: maze.CellCoord{X: 1, Y: 1}, Before: maze.Left, After: 0})
	accumulator.drop(block)

	seq := uint64(5)
	if deltas := accumulator.flush("server-abc", &seq); deltas != nil {
		t.Fatalf("expected nil deltas for empty accumulator, got %#v", deltas)
	}
	if seq != 5 {
		t.Fatalf("expected sequence unchanged for empty flush, got %d", seq)
	}
}
