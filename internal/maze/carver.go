package maze

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// ErrDegenerate reports a carve that left cells unreachable.
var ErrDegenerate = errors.New("degenerate maze")

var seedCounter atomic.Int64

// CarveStats summarises one carve.
type CarveStats struct {
	Visited   int `json:"visited"`
	DeadEnds  int `json:"deadEnds"`
	Braids    int `json:"braids"`
	RoomCells int `json:"roomCells"`
}

// Carver runs the randomized depth-first backtracker over a block. A Carver
// is not safe for concurrent use.
type Carver struct {
	rng *rand.Rand
}

// NewCarver returns a carver seeded with seed. Zero picks a time based seed.
func NewCarver(seed int64) *Carver {
	if seed == 0 {
		seed = time.Now().UnixNano() + seedCounter.Add(1)
	}
	return &Carver{rng: rand.New(rand.NewSource(seed))}
}

func (c *Carver) Carve(b *Block) error {
	_, err := c.CarveWithStats(b)
	return err
}

// CarveWithStats carves b in place. The block must be fresh from NewBlock.
func (c *Carver) CarveWithStats(b *Block) (CarveStats, error) {
	var stats CarveStats
	if b == nil || len(b.cells) == 0 {
		return stats, fmt.Errorf("%w: empty block", ErrDegenerate)
	}

	start := &b.cells[b.index(1, 1)]
	start.Visited = true
	stats.Visited = 1
	stack := []*Cell{start}
	relieved := false

	candidates := make([]*Cell, 0, 4)
	for len(stack) > 0 {
		current := stack[len(stack)-1]

		candidates = candidates[:0]
		for _, n := range b.Neighbors(current.Coord) {
			if !n.Visited {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) > 0 {
			next := candidates[c.rng.Intn(len(candidates))]
			b.openBetween(current, next)
			next.Visited = true
			stats.Visited++
			stack = append(stack, next)
			relieved = false
			continue
		}

		if b.Params.OpenDeadEnds && !relieved {
			relieved = true
			stats.DeadEnds++
			var parent *Cell
			if len(stack) > 1 {
				parent = stack[len(stack)-2]
			}
			for _, n := range b.Neighbors(current.Coord) {
				if n != parent {
					candidates = append(candidates, n)
				}
			}
			if len(candidates) > 0 {
				b.openBetween(current, candidates[c.rng.Intn(len(candidates))])
				stats.Braids++
			}
			continue
		}

		stack = stack[:len(stack)-1]
	}

	if stats.Visited != len(b.cells) {
		return stats, fmt.Errorf("%w: block %v visited %d of %d cells", ErrDegenerate, b.Coord, stats.Visited, len(b.cells))
	}

	stats.RoomCells = carveCenter(b)
	return stats, nil
}

// carveCenter opens every non-border cell within CarveRadius of the block
// center by clearing the flags it owns.
func carveCenter(b *Block) int {
	radius := float64(b.Params.CarveRadius)
	if radius <= 0 {
		return 0
	}
	cx := float64(b.Params.Width+1) / 2
	cy := float64(b.Params.Height+1) / 2
	rooms := 0
	for i := range b.cells {
		cell := &b.cells[i]
		if b.IsBorder(cell.Coord) {
			continue
		}
		if math.Hypot(float64(cell.Coord.X)-cx, float64(cell.Coord.Y)-cy) > radius {
			continue
		}
		cell.setWall(Up|Left, false)
		rooms++
	}
	return rooms
}
