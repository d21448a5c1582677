package world

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"mazeworld/internal/maze"
)

func testParams() maze.Params {
	return maze.Params{Width: 4, Height: 3, CellSize: 2, WallThickness: 0.1}
}

func newTestManager(t *testing.T, generator Generator, opts ...Option) *Manager {
	t.Helper()
	params := testParams()
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	m, err := NewManager(params, NewLayout(params), generator, opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func window(minX, minY, maxX, maxY int) []BlockCoord {
	var out []BlockCoord
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			out = append(out, BlockCoord{X: x, Y: y})
		}
	}
	return out
}

type failingGenerator struct {
	inner Generator
	fail  BlockCoord
	calls int
}

func (g *failingGenerator) Generate(ctx context.Context, coord BlockCoord, params maze.Params) (*maze.Block, error) {
	g.calls++
	if coord == g.fail {
		return nil, errors.New("boom")
	}
	return g.inner.Generate(ctx, coord, params)
}

func TestManagerDriveBuildsNeighborhood(t *testing.T) {
	m := newTestManager(t, CarveGenerator{Seed: 5})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	center := m.Layout().BlockCenter(BlockCoord{})
	report, err := m.Drive(ctx, center)
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if report.Skipped || report.Center != (BlockCoord{}) {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Generated) != 9 || len(report.Evicted) != 0 {
		t.Fatalf("expected 9 generated and none evicted, got %d/%d", len(report.Generated), len(report.Evicted))
	}
	if got, want := m.Coords(), window(-1, -1, 1, 1); !reflect.DeepEqual(got, want) {
		t.Fatalf("store = %v, want %v", got, want)
	}
	if last, ok := m.LastObserverBlock(); !ok || last != (BlockCoord{}) {
		t.Fatalf("last observer block = %v %v", last, ok)
	}

	again, err := m.Drive(ctx, Position{X: center.X + 0.5, Y: center.Y - 0.5})
	if err != nil || !again.Skipped {
		t.Fatalf("second drive in same block should skip, got %+v %v", again, err)
	}

	moved, err := m.Drive(ctx, m.Layout().BlockCenter(BlockCoord{X: 1}))
	if err != nil {
		t.Fatalf("drive after move: %v", err)
	}
	if got, want := m.Coords(), window(0, -1, 2, 1); !reflect.DeepEqual(got, want) {
		t.Fatalf("store after move = %v, want %v", got, want)
	}
	if want := window(-1, -1, -1, 1); !reflect.DeepEqual(moved.Evicted, want) {
		t.Fatalf("evicted = %v, want %v", moved.Evicted, want)
	}
	if want := window(2, -1, 2, 1); !reflect.DeepEqual(moved.Generated, want) {
		t.Fatalf("generated = %v, want %v", moved.Generated, want)
	}
}

func TestManagerStitchOpensSharedBorders(t *testing.T) {
	store := NewMemoryStore()
	params := testParams()
	for _, c := range []BlockCoord{{X: 0}, {X: 1}} {
		b, err := CarveGenerator{Seed: 9}.Generate(context.Background(), c, params)
		if err != nil {
			t.Fatalf("generate %v: %v", c, err)
		}
		if err := store.Put(b); err != nil {
			t.Fatalf("put %v: %v", c, err)
		}
	}
	m := newTestManager(t, CarveGenerator{Seed: 9}, WithStore(store))

	changes := m.Stitch()
	if len(changes) != 2*params.Height {
		t.Fatalf("expected %d changes, got %d", 2*params.Height, len(changes))
	}
	left, _ := m.BlockAt(BlockCoord{})
	right, _ := m.BlockAt(BlockCoord{X: 1})
	if !left.BorderOpen(maze.Right) {
		t.Fatalf("(0,0) right border should be open")
	}
	if !right.BorderOpen(maze.Left) {
		t.Fatalf("(1,0) left border should be open")
	}
	for _, d := range []maze.Direction{maze.Up, maze.Down} {
		if left.BorderOpen(d) || right.BorderOpen(d) {
			t.Fatalf("%v border should stay closed without a neighbor", d)
		}
	}
	if left.BorderOpen(maze.Left) || right.BorderOpen(maze.Right) {
		t.Fatalf("outer borders should stay closed")
	}
	for y := 1; y <= params.Height; y++ {
		if !m.IsWallOpen(BlockCoord{}, params.Width, y, maze.Right) {
			t.Fatalf("(0,0) cell (%d,%d) right wall should be open", params.Width, y)
		}
	}

	before := fingerprints(m)
	if again := m.Stitch(); len(again) != 0 {
		t.Fatalf("second stitch should be a no-op, got %d changes", len(again))
	}
	if after := fingerprints(m); !reflect.DeepEqual(before, after) {
		t.Fatalf("stitch changed walls on an unchanged neighborhood")
	}
}

func TestManagerEvictionRestoresBorders(t *testing.T) {
	m := newTestManager(t, CarveGenerator{Seed: 3})
	ctx := context.Background()
	if _, err := m.Refresh(ctx, BlockCoord{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	edge, _ := m.BlockAt(BlockCoord{X: 1})
	if edge.BorderOpen(maze.Right) {
		t.Fatalf("window edge should keep its outer border")
	}
	if !edge.BorderOpen(maze.Left) {
		t.Fatalf("window edge should open toward the center")
	}

	if _, err := m.Refresh(ctx, BlockCoord{X: 2}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	edge, _ = m.BlockAt(BlockCoord{X: 1})
	if !edge.BorderOpen(maze.Right) || edge.BorderOpen(maze.Left) {
		t.Fatalf("block (1,0) borders should follow its new neighbors")
	}
}

func TestManagerRegeneratesSameShapeWithSeed(t *testing.T) {
	m := newTestManager(t, CarveGenerator{Seed: 77})
	ctx := context.Background()
	if _, err := m.Refresh(ctx, BlockCoord{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := fingerprints(m)

	if _, err := m.Refresh(ctx, BlockCoord{X: 10, Y: 10}); err != nil {
		t.Fatalf("refresh far: %v", err)
	}
	if _, ok := m.BlockAt(BlockCoord{}); ok {
		t.Fatalf("origin block should have been evicted")
	}
	if _, err := m.Refresh(ctx, BlockCoord{}); err != nil {
		t.Fatalf("refresh back: %v", err)
	}
	if after := fingerprints(m); !reflect.DeepEqual(before, after) {
		t.Fatalf("regenerated window differs from the original")
	}
}

func TestManagerRegeneratesValidShapeWithoutSeed(t *testing.T) {
	m := newTestManager(t, CarveGenerator{})
	ctx := context.Background()
	params := m.Params()
	for i := 0; i < 3; i++ {
		if _, err := m.Refresh(ctx, BlockCoord{X: i * 10}); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		b, ok := m.BlockAt(BlockCoord{X: i * 10})
		if !ok {
			t.Fatalf("center block missing")
		}
		if len(b.Cells()) != params.Width*params.Height {
			t.Fatalf("unexpected cell count %d", len(b.Cells()))
		}
		if b.OpenInteriorEdges() != params.Width*params.Height-1 {
			t.Fatalf("regenerated block is not a spanning tree")
		}
	}
}

func TestManagerGenerationFailureIsIsolated(t *testing.T) {
	bad := BlockCoord{X: 1, Y: 1}
	gen := &failingGenerator{inner: CarveGenerator{Seed: 1}, fail: bad}
	m := newTestManager(t, gen)
	ctx := context.Background()

	report, err := m.Drive(ctx, m.Layout().BlockCenter(BlockCoord{}))
	if err == nil {
		t.Fatalf("expected generation error")
	}
	if _, ok := report.Failed[bad]; !ok || len(report.Failed) != 1 {
		t.Fatalf("failed = %v", report.Failed)
	}
	if len(report.Generated) != 8 {
		t.Fatalf("other blocks should still generate, got %d", len(report.Generated))
	}
	if _, ok := m.LastObserverBlock(); ok {
		t.Fatalf("failed cycle should not record the observer block")
	}

	gen.fail = BlockCoord{X: 99}
	report, err = m.Drive(ctx, m.Layout().BlockCenter(BlockCoord{}))
	if err != nil {
		t.Fatalf("retry drive: %v", err)
	}
	if !reflect.DeepEqual(report.Generated, []BlockCoord{bad}) {
		t.Fatalf("retry should generate only the missing block, got %v", report.Generated)
	}
}

func TestManagerRejectsInvalidParams(t *testing.T) {
	gen := &failingGenerator{inner: CarveGenerator{}}
	params := testParams()
	params.CellSize = 0
	if _, err := NewManager(params, NewLayout(params), gen); !errors.Is(err, maze.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not run for invalid params")
	}
	if _, err := NewManager(testParams(), NewLayout(testParams()), gen, WithLocateMode("sideways")); err == nil {
		t.Fatalf("expected unknown locate mode error")
	}
}

func TestManagerNearestLocateMode(t *testing.T) {
	m := newTestManager(t, CarveGenerator{Seed: 2}, WithLocateMode(LocateModeNearest))
	ctx := context.Background()
	layout := m.Layout()

	report, err := m.Drive(ctx, Position{X: 1, Y: 1})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if report.Center != (BlockCoord{}) {
		t.Fatalf("empty store should fall back to containment, got %v", report.Center)
	}

	far := layout.BlockCenter(BlockCoord{X: 5})
	report, err = m.Drive(ctx, far)
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if report.Center != (BlockCoord{X: 1}) {
		t.Fatalf("nearest mode should step toward the observer, got %v", report.Center)
	}
}

func TestManagerCanMove(t *testing.T) {
	m := newTestManager(t, CarveGenerator{Seed: 4})
	if _, err := m.Refresh(context.Background(), BlockCoord{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	layout := m.Layout()
	pos := layout.CellCenter(BlockCoord{}, maze.CellCoord{X: 1, Y: 2})
	if !m.CanMove(pos, maze.Left) {
		t.Fatalf("left border of the center block faces a live neighbor")
	}
	cell, ok := m.Cell(BlockCoord{}, 2, 2)
	if !ok {
		t.Fatalf("cell lookup failed")
	}
	inner := layout.CellCenter(BlockCoord{}, cell.Coord)
	if m.CanMove(inner, maze.Up) == cell.HasWall(maze.Up) {
		t.Fatalf("CanMove disagrees with the up flag of %v", cell.Coord)
	}
	if _, ok := m.Cell(BlockCoord{X: 40}, 1, 1); ok {
		t.Fatalf("cell lookup in a missing block should miss")
	}
}

func TestSavePreviewWritesPNG(t *testing.T) {
	m := newTestManager(t, CarveGenerator{Seed: 8})
	if _, err := m.Refresh(context.Background(), BlockCoord{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	observer := m.Layout().BlockCenter(BlockCoord{})
	path := filepath.Join(t.TempDir(), "preview", "window.png")
	style := PreviewStyle{PixelsPerUnit: 4, Observer: &observer}
	if err := SavePreview(m.Blocks(), m.Layout(), path, style); err != nil {
		t.Fatalf("save preview: %v", err)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	params := m.Params()
	wantW := int(3*float64(params.Width)*params.CellSize*4) + 1
	if img.Bounds().Dx() != wantW {
		t.Fatalf("preview width = %d, want %d", img.Bounds().Dx(), wantW)
	}
	if err := SavePreview(nil, m.Layout(), path, style); err == nil {
		t.Fatalf("expected error for empty block list")
	}
}

func fingerprints(m *Manager) map[BlockCoord]string {
	out := make(map[BlockCoord]string)
	for _, b := range m.Blocks() {
		out[b.Coord] = b.Fingerprint()
	}
	return out
}
