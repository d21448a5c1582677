package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"

	"mazeworld/internal/config"
	"mazeworld/internal/maze"
	"mazeworld/internal/world"
)

var (
	styleFloor    = tcell.StyleDefault.Background(tcell.ColorBlack)
	styleUnloaded = tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)
	styleWallEven = tcell.StyleDefault.Foreground(tcell.ColorBeige)
	styleWallOdd  = tcell.StyleDefault.Foreground(tcell.ColorTan)
	styleObserver = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleStatus   = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorSilver)
)

type viewer struct {
	cfg     *config.Config
	screen  tcell.Screen
	manager *world.Manager
	params  maze.Params
	layout  world.Layout

	pos     world.Position
	last    world.Report
	cycles  int
	message string
}

func newViewer(cfg *config.Config, screen tcell.Screen) (*viewer, error) {
	params := cfg.Block.Params()
	layout := world.NewLayout(params)
	manager, err := world.NewManager(params, layout,
		world.CarveGenerator{Seed: cfg.Generation.Seed},
		world.WithLocateMode(world.LocateMode(cfg.Generation.Locate)),
		world.WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		return nil, err
	}
	return &viewer{
		cfg:     cfg,
		screen:  screen,
		manager: manager,
		params:  params,
		layout:  layout,
		pos:     world.Position{X: cfg.Observer.Start.X, Y: cfg.Observer.Start.Y},
	}, nil
}

func (v *viewer) drive(ctx context.Context) {
	report, err := v.manager.Drive(ctx, v.pos)
	if err != nil {
		v.message = err.Error()
	}
	if !report.Skipped {
		v.last = report
		v.cycles++
	}
}

func (v *viewer) move(d maze.Direction) {
	if !v.manager.CanMove(v.pos, d) {
		v.message = fmt.Sprintf("wall %s", d)
		return
	}
	dx, dy := d.Offset()
	v.pos.X += float64(dx) * v.params.CellSize
	v.pos.Y += float64(dy) * v.params.CellSize
	v.message = ""
}

// globalCell returns the cell at global cell indices gx, gy, counted from
// block (0,0) cell (1,1).
func (v *viewer) globalCell(blocks map[maze.BlockCoord]*maze.Block, gx, gy int) (*maze.Block, int, int, bool) {
	bx := floorDiv(gx, v.params.Width)
	by := floorDiv(gy, v.params.Height)
	block, ok := blocks[maze.BlockCoord{X: bx, Y: by}]
	if !ok {
		return nil, 0, 0, false
	}
	return block, gx - bx*v.params.Width + 1, gy - by*v.params.Height + 1, true
}

// wallBetween reports whether a wall separates the cell at gx, gy from its
// neighbour in direction d and whether either side is loaded.
func (v *viewer) wallBetween(blocks map[maze.BlockCoord]*maze.Block, gx, gy int, d maze.Direction) (closed, known bool) {
	if block, x, y, ok := v.globalCell(blocks, gx, gy); ok {
		return !block.IsWallOpen(x, y, d), true
	}
	dx, dy := d.Offset()
	if block, x, y, ok := v.globalCell(blocks, gx+dx, gy+dy); ok {
		return !block.IsWallOpen(x, y, d.Opposite()), true
	}
	return false, false
}

func (v *viewer) wallStyle(gx, gy int) tcell.Style {
	bx := floorDiv(gx, v.params.Width)
	by := floorDiv(gy, v.params.Height)
	if (bx+by)%2 == 0 {
		return styleWallEven
	}
	return styleWallOdd
}

func (v *viewer) draw() {
	v.screen.Clear()
	cols, rows := v.screen.Size()
	rows-- // status line

	blocks := make(map[maze.BlockCoord]*maze.Block)
	for _, b := range v.manager.Blocks() {
		blocks[b.Coord] = b
	}

	coord, cell := v.layout.CellAt(v.pos)
	ogx := coord.X*v.params.Width + cell.X - 1
	ogy := coord.Y*v.params.Height + cell.Y - 1
	// Character grid: cells sit on odd indices, walls on even ones.
	centerX, centerY := 2*ogx+1, 2*ogy+1

	for r := 0; r < rows; r++ {
		gridY := centerY - (r - rows/2)
		for c := 0; c < cols; c++ {
			gridX := centerX + (c - cols/2)
			ch, style := v.glyph(blocks, gridX, gridY)
			v.screen.SetContent(c, r, ch, nil, style)
		}
	}

	status := fmt.Sprintf(" pos (%.1f, %.1f) block %v cell (%d,%d) | blocks %d cycles %d gen %d evict %d walls %d %s | arrows/hjkl move, p preview, q quit %s",
		v.pos.X, v.pos.Y, coord, cell.X, cell.Y, len(blocks), v.cycles,
		len(v.last.Generated), len(v.last.Evicted), len(v.last.Changes), v.last.Duration.Round(time.Microsecond), v.message)
	for c := 0; c < cols; c++ {
		ch := ' '
		if c < len(status) {
			ch = rune(status[c])
		}
		v.screen.SetContent(c, rows, ch, nil, styleStatus)
	}
	v.screen.Show()
}

func (v *viewer) glyph(blocks map[maze.BlockCoord]*maze.Block, gridX, gridY int) (rune, tcell.Style) {
	oddX, oddY := gridX&1 == 1, gridY&1 == 1
	gx, gy := floorDiv(gridX, 2), floorDiv(gridY, 2)
	switch {
	case oddX && oddY:
		if _, _, _, ok := v.globalCell(blocks, gx, gy); !ok {
			return '░', styleUnloaded
		}
		coord, cell := v.layout.CellAt(v.pos)
		if gx == coord.X*v.params.Width+cell.X-1 && gy == coord.Y*v.params.Height+cell.Y-1 {
			return '@', styleObserver
		}
		return ' ', styleFloor
	case !oddX && oddY:
		// Left wall of cell gx.
		closed, known := v.wallBetween(blocks, gx, gy, maze.Left)
		if !known {
			return '░', styleUnloaded
		}
		if closed {
			return '█', v.wallStyle(gx, gy)
		}
		return ' ', styleFloor
	case oddX && !oddY:
		// Bottom wall of cell gy.
		closed, known := v.wallBetween(blocks, gx, gy, maze.Down)
		if !known {
			return '░', styleUnloaded
		}
		if closed {
			return '█', v.wallStyle(gx, gy)
		}
		return ' ', styleFloor
	default:
		// Corner shared by cells (gx-1..gx, gy-1..gy).
		anyKnown := false
		for _, probe := range []struct {
			gx, gy int
			d      maze.Direction
		}{
			{gx, gy, maze.Left},
			{gx, gy, maze.Down},
			{gx - 1, gy - 1, maze.Up},
			{gx - 1, gy - 1, maze.Right},
		} {
			closed, known := v.wallBetween(blocks, probe.gx, probe.gy, probe.d)
			anyKnown = anyKnown || known
			if closed {
				return '█', v.wallStyle(gx, gy)
			}
		}
		if !anyKnown {
			return '░', styleUnloaded
		}
		return ' ', styleFloor
	}
}

func (v *viewer) savePreview() {
	dir := v.cfg.Preview.Dir
	path := filepath.Join(dir, fmt.Sprintf("maze-%s.png", time.Now().Format("20060102-150405")))
	pos := v.pos
	style := world.PreviewStyle{
		PixelsPerUnit: v.cfg.Preview.PixelsPerUnit,
		Background:    v.cfg.Preview.Background,
		Floor:         v.cfg.Preview.Floor,
		Wall:          v.cfg.Preview.Wall,
		Marker:        v.cfg.Preview.Marker,
		Observer:      &pos,
	}
	if err := world.SavePreview(v.manager.Blocks(), v.layout, path, style); err != nil {
		v.message = fmt.Sprintf("preview: %v", err)
		return
	}
	v.message = "wrote " + path
}

// handleInput returns false when the viewer should exit.
func (v *viewer) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			v.move(maze.Up)
		case tcell.KeyDown:
			v.move(maze.Down)
		case tcell.KeyLeft:
			v.move(maze.Left)
		case tcell.KeyRight:
			v.move(maze.Right)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case 'k':
				v.move(maze.Up)
			case 'j':
				v.move(maze.Down)
			case 'h':
				v.move(maze.Left)
			case 'l':
				v.move(maze.Right)
			case 'p':
				v.savePreview()
			}
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return true
}

func (v *viewer) run(ctx context.Context) {
	ticker := time.NewTicker(v.cfg.Server.DriveRate.Duration())
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	v.drive(ctx)
	v.draw()
	for {
		select {
		case ev := <-events:
			if !v.handleInput(ev) {
				return
			}
			v.draw()
		case <-ticker.C:
			v.drive(ctx)
			v.draw()
		}
	}
}

func floorDiv(value, size int) int {
	if value >= 0 {
		return value / size
	}
	return -((-value + size - 1) / size)
}

func main() {
	cfgPath := flag.String("config", "", "maze configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	v, err := newViewer(cfg, screen)
	if err != nil {
		screen.Fini()
		fmt.Fprintf(os.Stderr, "world: %v\n", err)
		os.Exit(1)
	}
	v.run(context.Background())
}
