package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mazeworld/internal/maze"
)

// Report describes one drive cycle.
type Report struct {
	Center    BlockCoord
	Skipped   bool
	Generated []BlockCoord
	Evicted   []BlockCoord
	Failed    map[BlockCoord]error
	Changes   []maze.WallChange
	Duration  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

func WithStore(store Store) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithLocateMode(mode LocateMode) Option {
	return func(m *Manager) {
		m.locate = mode
	}
}

// Manager keeps the 3x3 window of blocks around the observer alive. Drive is
// expected to be called by a single driver; queries may run concurrently.
type Manager struct {
	params    maze.Params
	layout    Layout
	generator Generator
	logger    *log.Logger
	locate    LocateMode

	mu      sync.RWMutex
	store   Store
	last    BlockCoord
	hasLast bool
}

func NewManager(params maze.Params, layout Layout, generator Generator, opts ...Option) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if generator == nil {
		return nil, errors.New("world manager requires a generator")
	}
	m := &Manager{
		params:    params,
		layout:    layout,
		generator: generator,
		logger:    log.New(log.Writer(), "world ", log.LstdFlags|log.Lmicroseconds),
		locate:    LocateModeContain,
		store:     NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	switch m.locate {
	case LocateModeContain, LocateModeNearest:
	default:
		return nil, fmt.Errorf("unknown locate mode %q", m.locate)
	}
	return m, nil
}

func (m *Manager) Params() maze.Params {
	return m.params
}

func (m *Manager) Layout() Layout {
	return m.layout
}

// Drive runs one cycle for an observer at pos. When the observer is still in
// the block of the previous successful cycle nothing changes.
func (m *Manager) Drive(ctx context.Context, pos Position) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	center := m.locateLocked(pos)
	if m.hasLast && center == m.last {
		return Report{Center: center, Skipped: true}, nil
	}
	report, err := m.refreshLocked(ctx, center)
	if err == nil {
		m.last = center
		m.hasLast = true
	}
	return report, err
}

func (m *Manager) locateLocked(pos Position) BlockCoord {
	if m.locate == LocateModeNearest {
		if coord, ok := m.layout.LocateNearest(pos, m.store.Coords()); ok {
			return coord
		}
	}
	return m.layout.Locate(pos)
}

// Refresh generates, evicts and stitches around center regardless of the
// last observed block.
func (m *Manager) Refresh(ctx context.Context, center BlockCoord) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx, center)
}

func (m *Manager) refreshLocked(ctx context.Context, center BlockCoord) (Report, error) {
	start := time.Now()
	report := Report{Center: center}
	needed := Neighborhood(center)
	keep := make(map[BlockCoord]struct{}, len(needed))

	var errs []error
	for _, coord := range needed {
		keep[coord] = struct{}{}
		if _, ok := m.store.Get(coord); ok {
			continue
		}
		block, err := m.generator.Generate(ctx, coord, m.params)
		if err == nil {
			err = m.store.Put(block)
		}
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[BlockCoord]error)
			}
			report.Failed[coord] = err
			errs = append(errs, fmt.Errorf("generate block %v: %w", coord, err))
			m.logger.Printf("generate block %v: %v", coord, err)
			continue
		}
		report.Generated = append(report.Generated, coord)
	}

	for _, coord := range m.store.Coords() {
		if _, ok := keep[coord]; !ok {
			report.Evicted = append(report.Evicted, coord)
		}
	}
	for _, coord := range report.Evicted {
		m.store.Delete(coord)
	}

	report.Changes = m.stitchLocked()
	report.Duration = time.Since(start)
	if len(report.Generated) > 0 || len(report.Evicted) > 0 {
		m.logger.Printf("center %v: generated %d evicted %d wall changes %d in %s",
			center, len(report.Generated), len(report.Evicted), len(report.Changes), report.Duration)
	}
	return report, errors.Join(errs...)
}

// Stitch opens every border that faces an existing block and restores the
// rest. Running it twice in a row returns no changes the second time.
func (m *Manager) Stitch() []maze.WallChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stitchLocked()
}

func (m *Manager) stitchLocked() []maze.WallChange {
	var changes []maze.WallChange
	for _, block := range m.store.Blocks() {
		for _, d := range maze.Directions {
			dx, dy := d.Offset()
			_, exists := m.store.Get(block.Coord.Add(dx, dy))
			changes = append(changes, block.SetBorder(d, exists)...)
		}
	}
	return changes
}

// BlockAt returns a copy of the block at coord.
func (m *Manager) BlockAt(coord BlockCoord) (*maze.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.store.Get(coord)
	if !ok {
		return nil, false
	}
	return block.Clone(), true
}

// Blocks returns copies of every active block in coord order.
func (m *Manager) Blocks() []*maze.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	live := m.store.Blocks()
	out := make([]*maze.Block, len(live))
	for i, b := range live {
		out[i] = b.Clone()
	}
	return out
}

func (m *Manager) Coords() []BlockCoord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Coords()
}

func (m *Manager) Cell(coord BlockCoord, x, y int) (maze.Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.store.Get(coord)
	if !ok {
		return maze.Cell{}, false
	}
	cell, ok := block.Cell(x, y)
	if !ok {
		return maze.Cell{}, false
	}
	return *cell, true
}

// IsWallOpen reports false for blocks or cells that do not exist.
func (m *Manager) IsWallOpen(coord BlockCoord, x, y int, d maze.Direction) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.store.Get(coord)
	if !ok {
		return false
	}
	return block.IsWallOpen(x, y, d)
}

// CanMove reports whether a step from pos in direction d crosses an open
// wall. At a block border the stitched boundary wall decides.
func (m *Manager) CanMove(pos Position, d maze.Direction) bool {
	coord, cell := m.layout.CellAt(pos)
	return m.IsWallOpen(coord, cell.X, cell.Y, d)
}

func (m *Manager) LastObserverBlock() (BlockCoord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.hasLast
}
