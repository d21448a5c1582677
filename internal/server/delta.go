package server

import (
	"sort"
	"time"

	"mazeworld/internal/maze"
	"mazeworld/internal/network"
)

type deltaAccumulator struct {
	data map[maze.BlockCoord]map[maze.CellCoord]maze.WallChange
}

func newDeltaAccumulator() *deltaAccumulator {
	return &deltaAccumulator{
		data: make(map[maze.BlockCoord]map[maze.CellCoord]maze.WallChange),
	}
}

// add records a change, keeping the first Before seen for the cell since the
// last flush.
func (d *deltaAccumulator) add(change maze.WallChange) {
	if d.data == nil {
		d.data = make(map[maze.BlockCoord]map[maze.CellCoord]maze.WallChange)
	}

	byCell := d.data[change.Block]
	if byCell == nil {
		byCell = make(map[maze.CellCoord]maze.WallChange)
		d.data[change.Block] = byCell
	}

	if existing, ok := byCell[change.Cell]; ok {
		change.Before = existing.Before
	}
	byCell[change.Cell] = change
}

// drop forgets pending changes for a block that left the window.
func (d *deltaAccumulator) drop(block maze.BlockCoord) {
	delete(d.data, block)
}

func (d *deltaAccumulator) len() int {
	n := 0
	for _, cells := range d.data {
		n += len(cells)
	}
	return n
}

// flush returns one delta per block in coord order. Cells whose walls ended
// where they started are left out.
func (d *deltaAccumulator) flush(serverID string, seq *uint64) []network.WallDelta {
	if len(d.data) == 0 {
		return nil
	}

	blocks := make([]maze.BlockCoord, 0, len(d.data))
	for coord := range d.data {
		blocks = append(blocks, coord)
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].X != blocks[j].X {
			return blocks[i].X < blocks[j].X
		}
		return blocks[i].Y < blocks[j].Y
	})

	now := time.Now().UTC()
	var deltas []network.WallDelta
	for _, coord := range blocks {
		cells := d.data[coord]
		changed := make([]maze.WallChange, 0, len(cells))
		for _, change := range cells {
			if change.Before != change.After {
				changed = append(changed, change)
			}
		}
		if len(changed) == 0 {
			continue
		}
		sort.Slice(changed, func(i, j int) bool {
			if changed[i].Cell.Y != changed[j].Cell.Y {
				return changed[i].Cell.Y < changed[j].Cell.Y
			}
			return changed[i].Cell.X < changed[j].Cell.X
		})

		delta := network.WallDelta{
			ServerID:  serverID,
			Block:     coord,
			Seq:       *seq,
			Timestamp: now,
			Cells:     make([]network.CellChange, 0, len(changed)),
		}
		*seq++
		for _, change := range changed {
			delta.Cells = append(delta.Cells, network.CellChange{
				X:      change.Cell.X,
				Y:      change.Cell.Y,
				Before: int(change.Before),
				After:  int(change.After),
			})
		}
		deltas = append(deltas, delta)
	}

	d.data = make(map[maze.BlockCoord]map[maze.CellCoord]maze.WallChange)
	return deltas
}
