package world

import (
	"errors"

	"mazeworld/internal/maze"
)

// ErrDuplicateBlock is returned when a coord already holds a block.
var ErrDuplicateBlock = errors.New("block already stored")

// Store maps block coords to live blocks. Implementations need not be safe
// for concurrent use; the Manager serialises access.
type Store interface {
	Get(coord BlockCoord) (*maze.Block, bool)
	Put(block *maze.Block) error
	// Delete removes the block at coord. Absent coords are a no-op.
	Delete(coord BlockCoord)
	Len() int
	// Coords returns stored coords sorted by X then Y.
	Coords() []BlockCoord
	// Blocks returns stored blocks in Coords order.
	Blocks() []*maze.Block
}
