package maze

import "strings"

// Direction is a wall bitmask. Up faces y+1 and Down faces y-1.
type Direction uint8

const (
	Up    Direction = 1
	Down  Direction = 2
	Left  Direction = 4
	Right Direction = 8
)

// Directions lists the four cardinal directions in bit order.
var Directions = [4]Direction{Up, Down, Left, Right}

func (d Direction) String() string {
	if d == 0 {
		return "none"
	}
	var parts []string
	if d&Up != 0 {
		parts = append(parts, "up")
	}
	if d&Down != 0 {
		parts = append(parts, "down")
	}
	if d&Left != 0 {
		parts = append(parts, "left")
	}
	if d&Right != 0 {
		parts = append(parts, "right")
	}
	return strings.Join(parts, "|")
}

// Opposite returns the direction facing back across the same edge.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return 0
}

// Offset returns the cell step for a single direction.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case Up:
		return 0, 1
	case Down:
		return 0, -1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// CellCoord is a 1-based position inside a block.
type CellCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Step moves one cell in direction d.
func (c CellCoord) Step(d Direction) CellCoord {
	dx, dy := d.Offset()
	return CellCoord{X: c.X + dx, Y: c.Y + dy}
}

// Cell is one grid unit. Visited is carving bookkeeping and never touches Walls.
type Cell struct {
	Coord   CellCoord
	Walls   Direction
	Visited bool
}

func (c *Cell) HasWall(d Direction) bool {
	return c.Walls&d != 0
}

func (c *Cell) setWall(d Direction, present bool) {
	if present {
		c.Walls |= d
	} else {
		c.Walls &^= d
	}
}
