package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"mazeworld/internal/config"
	"mazeworld/internal/maze"
	"mazeworld/internal/world"
)

type countingGenerator struct {
	base  world.Generator
	loads atomic.Int64
	fails atomic.Int64
}

func newCountingGenerator(base world.Generator) *countingGenerator {
	return &countingGenerator{base: base}
}

func (g *countingGenerator) Generate(ctx context.Context, coord world.BlockCoord, params maze.Params) (*maze.Block, error) {
	block, err := g.base.Generate(ctx, coord, params)
	if err == nil {
		g.loads.Add(1)
	} else {
		g.fails.Add(1)
	}
	return block, err
}

func (g *countingGenerator) LoadCount() int64 {
	return g.loads.Load()
}

type carveTotals struct {
	blocks    atomic.Int64
	deadEnds  atomic.Int64
	braids    atomic.Int64
	roomCells atomic.Int64
	edges     atomic.Int64
	elapsed   atomic.Int64
	failures  atomic.Int64
}

func main() {
	var (
		cfgPath     = flag.String("config", "", "configuration file for block parameters")
		carves      = flag.Int("carves", 500, "blocks to carve in the throughput phase")
		concurrency = flag.Int("concurrency", runtime.NumCPU(), "carving workers")
		steps       = flag.Int("steps", 2000, "random walk steps in the streaming phase")
		seed        = flag.Int64("seed", 1337, "world seed (0 carves at random)")
		preview     = flag.String("preview", "", "write a PNG of the final window to this path")
	)
	flag.Parse()

	if *carves < 0 || *steps < 0 {
		fmt.Fprintln(os.Stderr, "carves and steps cannot be negative")
		os.Exit(1)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be positive")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	params := cfg.Block.Params()

	fmt.Println("== Maze Carving Profile ==")
	fmt.Printf("Block: %dx%d cells, cell size %.2f, carve radius %d, open dead ends %v\n",
		params.Width, params.Height, params.CellSize, params.CarveRadius, params.OpenDeadEnds)
	profileCarving(params, *carves, *concurrency, *seed)

	fmt.Println("== Streaming Walk Profile ==")
	if err := profileWalk(cfg, *steps, *seed, *preview); err != nil {
		fmt.Fprintf(os.Stderr, "walk: %v\n", err)
		os.Exit(1)
	}
}

func profileCarving(params maze.Params, total, concurrency int, seed int64) {
	if total == 0 {
		return
	}
	jobs := make(chan maze.BlockCoord)
	go func() {
		defer close(jobs)
		side := 1
		for side*side < total {
			side++
		}
		for i := 0; i < total; i++ {
			jobs <- maze.BlockCoord{X: i%side - side/2, Y: i/side - side/2}
		}
	}()

	var totals carveTotals
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		gen := world.CarveGenerator{Seed: seed}
		for coord := range jobs {
			start := time.Now()
			block, err := maze.NewBlock(coord, params)
			var stats maze.CarveStats
			if err == nil {
				stats, err = maze.NewCarver(gen.BlockSeed(coord)).CarveWithStats(block)
			}
			totals.elapsed.Add(int64(time.Since(start)))
			if err != nil {
				totals.failures.Add(1)
				continue
			}
			totals.blocks.Add(1)
			totals.deadEnds.Add(int64(stats.DeadEnds))
			totals.braids.Add(int64(stats.Braids))
			totals.roomCells.Add(int64(stats.RoomCells))
			totals.edges.Add(int64(block.OpenInteriorEdges()))
		}
	}

	wg.Add(concurrency)
	startWall := time.Now()
	for i := 0; i < concurrency; i++ {
		go worker()
	}
	wg.Wait()
	wall := time.Since(startWall)

	blocks := totals.blocks.Load()
	fmt.Printf("Blocks carved: %d (failures %d) with %d workers\n", blocks, totals.failures.Load(), concurrency)
	fmt.Printf("Wall clock duration: %s\n", wall)
	if blocks == 0 {
		return
	}
	fmt.Printf("Average carve duration: %s\n", time.Duration(totals.elapsed.Load()/int64(total)))
	fmt.Printf("Average dead ends: %.2f\n", float64(totals.deadEnds.Load())/float64(blocks))
	fmt.Printf("Average braids: %.2f\n", float64(totals.braids.Load())/float64(blocks))
	fmt.Printf("Average room cells: %.2f\n", float64(totals.roomCells.Load())/float64(blocks))
	fmt.Printf("Average open interior edges: %.2f (tree has %d)\n",
		float64(totals.edges.Load())/float64(blocks), params.Width*params.Height-1)
}

func profileWalk(cfg *config.Config, steps int, seed int64, previewPath string) error {
	params := cfg.Block.Params()
	layout := world.NewLayout(params)
	generator := newCountingGenerator(world.CarveGenerator{Seed: seed})
	manager, err := world.NewManager(params, layout, generator,
		world.WithLocateMode(world.LocateMode(cfg.Generation.Locate)),
		world.WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pos := world.Position{X: cfg.Observer.Start.X, Y: cfg.Observer.Start.Y}
	if _, err := manager.Drive(ctx, pos); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	var (
		cycles, evicted, changes int
		moves, blocked           int
		cycleTime, maxCycle      time.Duration
	)
	for i := 0; i < steps; i++ {
		d := maze.Directions[rng.Intn(len(maze.Directions))]
		if !manager.CanMove(pos, d) {
			blocked++
			continue
		}
		dx, dy := d.Offset()
		pos = world.Position{X: pos.X + float64(dx)*params.CellSize, Y: pos.Y + float64(dy)*params.CellSize}
		moves++

		report, err := manager.Drive(ctx, pos)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if report.Skipped {
			continue
		}
		cycles++
		evicted += len(report.Evicted)
		changes += len(report.Changes)
		cycleTime += report.Duration
		maxCycle = max(maxCycle, report.Duration)
	}

	last, _ := manager.LastObserverBlock()
	fmt.Printf("Steps: %d (moves %d, blocked %d)\n", steps, moves, blocked)
	fmt.Printf("Final position: (%.2f, %.2f) in block %v\n", pos.X, pos.Y, last)
	fmt.Printf("Window changes: %d\n", cycles)
	fmt.Printf("Blocks generated: %d, evicted: %d, failed: %d\n", generator.LoadCount(), evicted, generator.fails.Load())
	fmt.Printf("Wall changes from stitching: %d\n", changes)
	if cycles > 0 {
		fmt.Printf("Average cycle duration: %s (max %s)\n", cycleTime/time.Duration(cycles), maxCycle)
	}

	if previewPath == "" {
		return nil
	}
	style := world.PreviewStyle{
		PixelsPerUnit: cfg.Preview.PixelsPerUnit,
		Background:    cfg.Preview.Background,
		Floor:         cfg.Preview.Floor,
		Wall:          cfg.Preview.Wall,
		Marker:        cfg.Preview.Marker,
		Observer:      &pos,
	}
	if err := world.SavePreview(manager.Blocks(), layout, previewPath, style); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	fmt.Printf("Preview written to %s\n", previewPath)
	return nil
}
