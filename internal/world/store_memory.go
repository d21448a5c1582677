package world

import (
	"fmt"

	"mazeworld/internal/maze"
)

type memoryStore struct {
	blocks map[BlockCoord]*maze.Block
}

// NewMemoryStore returns an in-process Store. Blocks live only as long as
// the process.
func NewMemoryStore() Store {
	return &memoryStore{blocks: make(map[BlockCoord]*maze.Block)}
}

func (s *memoryStore) Get(coord BlockCoord) (*maze.Block, bool) {
	b, ok := s.blocks[coord]
	return b, ok
}

func (s *memoryStore) Put(block *maze.Block) error {
	if block == nil {
		return fmt.Errorf("put nil block")
	}
	if _, ok := s.blocks[block.Coord]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateBlock, block.Coord)
	}
	s.blocks[block.Coord] = block
	return nil
}

func (s *memoryStore) Delete(coord BlockCoord) {
	delete(s.blocks, coord)
}

func (s *memoryStore) Len() int {
	return len(s.blocks)
}

func (s *memoryStore) Coords() []BlockCoord {
	coords := make([]BlockCoord, 0, len(s.blocks))
	for c := range s.blocks {
		coords = append(coords, c)
	}
	sortCoords(coords)
	return coords
}

func (s *memoryStore) Blocks() []*maze.Block {
	coords := s.Coords()
	out := make([]*maze.Block, 0, len(coords))
	for _, c := range coords {
		out = append(out, s.blocks[c])
	}
	return out
}
