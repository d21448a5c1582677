package maze

// Wall is one physical wall placement in block-local world units. The block
// origin is the lower-left corner of cell (1,1).
type Wall struct {
	Cell   CellCoord `json:"cell"`
	Dir    Direction `json:"dir"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
}

// CellCenter returns the block-local center of cell c.
func (p Params) CellCenter(c CellCoord) (float64, float64) {
	return (float64(c.X) - 0.5) * p.CellSize, (float64(c.Y) - 0.5) * p.CellSize
}

// Walls lists every physical wall: remaining Up and Left flags on every cell,
// Right flags on the last column and Down flags on the first row.
func (b *Block) Walls() []Wall {
	size := b.Params.CellSize
	thick := size * b.Params.WallThickness
	var out []Wall
	for i := range b.cells {
		c := &b.cells[i]
		cx, cy := b.Params.CellCenter(c.Coord)
		if c.HasWall(Up) {
			out = append(out, Wall{Cell: c.Coord, Dir: Up, X: cx, Y: cy + 0.5*size, Width: size, Height: thick})
		}
		if c.HasWall(Left) {
			out = append(out, Wall{Cell: c.Coord, Dir: Left, X: cx - 0.5*size, Y: cy, Width: thick, Height: size})
		}
		if c.HasWall(Right) && c.Coord.X == b.Params.Width {
			out = append(out, Wall{Cell: c.Coord, Dir: Right, X: cx + 0.5*size, Y: cy, Width: thick, Height: size})
		}
		if c.HasWall(Down) && c.Coord.Y == 1 {
			out = append(out, Wall{Cell: c.Coord, Dir: Down, X: cx, Y: cy - 0.5*size, Width: size, Height: thick})
		}
	}
	return out
}
