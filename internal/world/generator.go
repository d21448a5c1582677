package world

import (
	"context"
	"fmt"

	"mazeworld/internal/maze"
)

// Generator produces a carved block for a coord.
type Generator interface {
	Generate(ctx context.Context, coord BlockCoord, params maze.Params) (*maze.Block, error)
}

// CarveGenerator carves blocks with the depth-first backtracker. A non-zero
// Seed makes every coord regenerate the same shape; zero carves at random.
type CarveGenerator struct {
	Seed int64
}

func (g CarveGenerator) Generate(ctx context.Context, coord BlockCoord, params maze.Params) (*maze.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	block, err := maze.NewBlock(coord, params)
	if err != nil {
		return nil, err
	}
	if err := maze.NewCarver(g.BlockSeed(coord)).Carve(block); err != nil {
		return nil, fmt.Errorf("carve block %v: %w", coord, err)
	}
	return block, nil
}

// BlockSeed is the carver seed used for coord, or 0 for an unseeded world.
func (g CarveGenerator) BlockSeed(coord BlockCoord) int64 {
	if g.Seed == 0 {
		return 0
	}
	seed := int64(hash2(g.Seed, coord.X, coord.Y))
	if seed == 0 {
		seed = 1
	}
	return seed
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
