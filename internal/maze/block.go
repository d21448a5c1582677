package maze

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidParams marks a block configuration that must never be generated.
var ErrInvalidParams = errors.New("invalid block params")

// BlockCoord identifies a block in block-grid space.
type BlockCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c BlockCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Add offsets the coord by dx, dy blocks.
func (c BlockCoord) Add(dx, dy int) BlockCoord {
	return BlockCoord{X: c.X + dx, Y: c.Y + dy}
}

// Params describes the shape shared by every block of a world.
type Params struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	CellSize      float64 `json:"cellSize"`
	CarveRadius   int     `json:"carveRadius"`
	WallThickness float64 `json:"wallThickness"`
	OpenDeadEnds  bool    `json:"openDeadEnds"`
}

func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: block dimensions must be positive, got %dx%d", ErrInvalidParams, p.Width, p.Height)
	case p.CellSize <= 0:
		return fmt.Errorf("%w: cell size must be positive, got %g", ErrInvalidParams, p.CellSize)
	case p.CarveRadius < 0:
		return fmt.Errorf("%w: carve radius must not be negative, got %d", ErrInvalidParams, p.CarveRadius)
	case p.WallThickness <= 0 || p.WallThickness > 0.5:
		return fmt.Errorf("%w: wall thickness must be within (0, 0.5], got %g", ErrInvalidParams, p.WallThickness)
	}
	return nil
}

// Block is a Width x Height arena of cells.
type Block struct {
	Coord  BlockCoord
	Params Params

	cells []Cell
}

// NewBlock creates an unvisited block with the canonical wall set: Up and Left
// on every cell, Right on the last column and Down on the first row.
func NewBlock(coord BlockCoord, params Params) (*Block, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	b := &Block{
		Coord:  coord,
		Params: params,
		cells:  make([]Cell, params.Width*params.Height),
	}
	for y := 1; y <= params.Height; y++ {
		for x := 1; x <= params.Width; x++ {
			walls := Up | Left
			if x == params.Width {
				walls |= Right
			}
			if y == 1 {
				walls |= Down
			}
			b.cells[b.index(x, y)] = Cell{Coord: CellCoord{X: x, Y: y}, Walls: walls}
		}
	}
	return b, nil
}

// RestoreBlock rebuilds a block from row-major wall masks as produced by
// WallMasks. Cells are marked visited.
func RestoreBlock(coord BlockCoord, params Params, walls []Direction) (*Block, error) {
	b, err := NewBlock(coord, params)
	if err != nil {
		return nil, err
	}
	if len(walls) != len(b.cells) {
		return nil, fmt.Errorf("restore block %v: got %d wall masks, want %d", coord, len(walls), len(b.cells))
	}
	for i := range b.cells {
		b.cells[i].Walls = walls[i] & (Up | Down | Left | Right)
		b.cells[i].Visited = true
	}
	return b, nil
}

// WallMasks returns the wall flags of every cell in row-major order.
func (b *Block) WallMasks() []Direction {
	out := make([]Direction, len(b.cells))
	for i := range b.cells {
		out[i] = b.cells[i].Walls
	}
	return out
}

func (b *Block) index(x, y int) int {
	return (y-1)*b.Params.Width + (x - 1)
}

func (b *Block) contains(x, y int) bool {
	return x >= 1 && y >= 1 && x <= b.Params.Width && y <= b.Params.Height
}

// Cell returns the cell at (x, y) or false when out of range.
func (b *Block) Cell(x, y int) (*Cell, bool) {
	if !b.contains(x, y) {
		return nil, false
	}
	return &b.cells[b.index(x, y)], true
}

// Neighbor returns the in-block cell adjacent to c in direction d.
func (b *Block) Neighbor(c CellCoord, d Direction) (*Cell, bool) {
	next := c.Step(d)
	return b.Cell(next.X, next.Y)
}

// Neighbors returns every in-block neighbor of c in Directions order.
func (b *Block) Neighbors(c CellCoord) []*Cell {
	out := make([]*Cell, 0, 4)
	for _, d := range Directions {
		if n, ok := b.Neighbor(c, d); ok {
			out = append(out, n)
		}
	}
	return out
}

func (b *Block) IsBorder(c CellCoord) bool {
	return c.X == 1 || c.Y == 1 || c.X == b.Params.Width || c.Y == b.Params.Height
}

// Cells returns the backing arena ordered by row then column.
func (b *Block) Cells() []Cell {
	return b.cells
}

// wallOwner resolves which cell flag represents the edge leaving c in
// direction d. Horizontal edges belong to the Left flag of the cell with the
// larger x, vertical edges to the Up flag of the cell with the smaller y.
func (b *Block) wallOwner(c CellCoord, d Direction) (*Cell, Direction, bool) {
	cell, ok := b.Cell(c.X, c.Y)
	if !ok {
		return nil, 0, false
	}
	switch d {
	case Up, Left:
		return cell, d, true
	case Right:
		if n, ok := b.Neighbor(c, Right); ok {
			return n, Left, true
		}
		return cell, Right, true
	case Down:
		if n, ok := b.Neighbor(c, Down); ok {
			return n, Up, true
		}
		return cell, Down, true
	}
	return nil, 0, false
}

// IsWallOpen reports whether the edge leaving (x, y) in direction d is open.
// Cells outside the block report false.
func (b *Block) IsWallOpen(x, y int, d Direction) bool {
	owner, flag, ok := b.wallOwner(CellCoord{X: x, Y: y}, d)
	if !ok {
		return false
	}
	return !owner.HasWall(flag)
}

// openBetween clears the single flag shared by two adjacent cells.
func (b *Block) openBetween(from *Cell, to *Cell) bool {
	for _, d := range Directions {
		if from.Coord.Step(d) != to.Coord {
			continue
		}
		owner, flag, ok := b.wallOwner(from.Coord, d)
		if !ok {
			return false
		}
		owner.setWall(flag, false)
		return true
	}
	return false
}

// OpenInteriorEdges counts open edges between two in-block cells.
func (b *Block) OpenInteriorEdges() int {
	open := 0
	for i := range b.cells {
		c := &b.cells[i]
		if c.Coord.X > 1 && !c.HasWall(Left) {
			open++
		}
		if c.Coord.Y < b.Params.Height && !c.HasWall(Up) {
			open++
		}
	}
	return open
}

// Reachable flood-fills through open interior edges and returns the number
// of cells reached from start, start included.
func (b *Block) Reachable(start CellCoord) int {
	if !b.contains(start.X, start.Y) {
		return 0
	}
	seen := make([]bool, len(b.cells))
	seen[b.index(start.X, start.Y)] = true
	queue := []CellCoord{start}
	count := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		count++
		for _, d := range Directions {
			next := cur.Step(d)
			if !b.contains(next.X, next.Y) || !b.IsWallOpen(cur.X, cur.Y, d) {
				continue
			}
			idx := b.index(next.X, next.Y)
			if seen[idx] {
				continue
			}
			seen[idx] = true
			queue = append(queue, next)
		}
	}
	return count
}

// borderFlag returns the boundary flag for side d and whether c lies on it.
func (b *Block) borderFlag(c CellCoord, d Direction) bool {
	switch d {
	case Left:
		return c.X == 1
	case Right:
		return c.X == b.Params.Width
	case Down:
		return c.Y == 1
	case Up:
		return c.Y == b.Params.Height
	}
	return false
}

// WallChange is the before/after wall state of one cell.
type WallChange struct {
	Block  BlockCoord `json:"block"`
	Cell   CellCoord  `json:"cell"`
	Before Direction  `json:"before"`
	After  Direction  `json:"after"`
}

// SetBorder opens or restores the boundary wall on side d for every border
// cell on that side. Only cells whose walls changed are returned.
func (b *Block) SetBorder(d Direction, open bool) []WallChange {
	var changes []WallChange
	for i := range b.cells {
		c := &b.cells[i]
		if !b.borderFlag(c.Coord, d) {
			continue
		}
		before := c.Walls
		c.setWall(d, !open)
		if c.Walls != before {
			changes = append(changes, WallChange{
				Block:  b.Coord,
				Cell:   c.Coord,
				Before: before,
				After:  c.Walls,
			})
		}
	}
	return changes
}

// BorderOpen reports whether every boundary wall on side d is open.
func (b *Block) BorderOpen(d Direction) bool {
	for i := range b.cells {
		c := &b.cells[i]
		if b.borderFlag(c.Coord, d) && c.HasWall(d) {
			return false
		}
	}
	return true
}

// Fingerprint digests the wall layout so two blocks of the same shape compare
// equal regardless of their coord.
func (b *Block) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte{byte(b.Params.Width), byte(b.Params.Width >> 8), byte(b.Params.Height), byte(b.Params.Height >> 8)})
	buf := make([]byte, len(b.cells))
	for i := range b.cells {
		buf[i] = byte(b.cells[i].Walls)
	}
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	dup := &Block{Coord: b.Coord, Params: b.Params, cells: make([]Cell, len(b.cells))}
	copy(dup.cells, b.cells)
	return dup
}
