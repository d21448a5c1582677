package world

import (
	"math"
	"sort"

	"mazeworld/internal/maze"
)

// BlockCoord identifies a block in block-grid space.
type BlockCoord = maze.BlockCoord

// Position is a point in world units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LocateMode selects how an observer position maps to its block.
type LocateMode string

const (
	LocateModeContain LocateMode = "contain"
	LocateModeNearest LocateMode = "nearest"
)

// Layout maps between world space and block space. Block (bx, by) covers
// [bx*W*cs, (bx+1)*W*cs) x [by*H*cs, (by+1)*H*cs).
type Layout struct {
	Width    int
	Height   int
	CellSize float64
}

func NewLayout(params maze.Params) Layout {
	return Layout{Width: params.Width, Height: params.Height, CellSize: params.CellSize}
}

func (l Layout) blockSpan() (float64, float64) {
	return float64(l.Width) * l.CellSize, float64(l.Height) * l.CellSize
}

// Locate returns the block containing pos using half-open ranges.
func (l Layout) Locate(pos Position) BlockCoord {
	block, _ := l.CellAt(pos)
	return block
}

// CellAt returns the block and 1-based cell containing pos.
func (l Layout) CellAt(pos Position) (BlockCoord, maze.CellCoord) {
	if l.CellSize <= 0 || l.Width <= 0 || l.Height <= 0 {
		return BlockCoord{}, maze.CellCoord{}
	}
	gx := int(math.Floor(pos.X / l.CellSize))
	gy := int(math.Floor(pos.Y / l.CellSize))
	block := BlockCoord{X: floorDiv(gx, l.Width), Y: floorDiv(gy, l.Height)}
	cell := maze.CellCoord{
		X: gx - block.X*l.Width + 1,
		Y: gy - block.Y*l.Height + 1,
	}
	return block, cell
}

// LocateNearest returns the candidate whose center is closest to pos. Ties go
// to the first candidate in sorted coord order.
func (l Layout) LocateNearest(pos Position, candidates []BlockCoord) (BlockCoord, bool) {
	if len(candidates) == 0 {
		return BlockCoord{}, false
	}
	sorted := append([]BlockCoord(nil), candidates...)
	sortCoords(sorted)
	best := sorted[0]
	bestDist := math.Inf(1)
	for _, c := range sorted {
		center := l.BlockCenter(c)
		d := math.Hypot(center.X-pos.X, center.Y-pos.Y)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}

// BlockOrigin is the world position of the lower-left corner of a block.
func (l Layout) BlockOrigin(c BlockCoord) Position {
	w, h := l.blockSpan()
	return Position{X: float64(c.X) * w, Y: float64(c.Y) * h}
}

func (l Layout) BlockCenter(c BlockCoord) Position {
	w, h := l.blockSpan()
	origin := l.BlockOrigin(c)
	return Position{X: origin.X + w/2, Y: origin.Y + h/2}
}

// CellCenter is the world position of the center of a cell.
func (l Layout) CellCenter(block BlockCoord, cell maze.CellCoord) Position {
	origin := l.BlockOrigin(block)
	return Position{
		X: origin.X + (float64(cell.X)-0.5)*l.CellSize,
		Y: origin.Y + (float64(cell.Y)-0.5)*l.CellSize,
	}
}

// Neighborhood returns the 3x3 window of coords centered on center, sorted.
func Neighborhood(center BlockCoord) []BlockCoord {
	out := make([]BlockCoord, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			out = append(out, center.Add(dx, dy))
		}
	}
	return out
}

func sortCoords(coords []BlockCoord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X != coords[j].X {
			return coords[i].X < coords[j].X
		}
		return coords[i].Y < coords[j].Y
	})
}

func floorDiv(value, size int) int {
	if size <= 0 {
		return 0
	}
	if value >= 0 {
		return value / size
	}
	return -((-value - 1) / size) - 1
}
