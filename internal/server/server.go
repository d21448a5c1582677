package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mazeworld/internal/config"
	"mazeworld/internal/maze"
	"mazeworld/internal/network"
	"mazeworld/internal/observer"
	"mazeworld/internal/trace"
	"mazeworld/internal/world"
)

type Server struct {
	cfg       *config.Config
	world     *world.Manager
	hub       *network.Hub
	observers *observer.Queue
	trace     *trace.Writer
	logger    *log.Logger

	// streamMu orders drive cycle broadcasts against client snapshots.
	streamMu    sync.Mutex
	deltaBuffer *deltaAccumulator
	deltaSeq    uint64
	cycle       uint64

	posMu    sync.RWMutex
	position world.Position
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Writer(), "maze-server ", log.LstdFlags|log.Lmicroseconds)
	params := cfg.Block.Params()
	manager, err := world.NewManager(params, world.NewLayout(params),
		world.CarveGenerator{Seed: cfg.Generation.Seed},
		world.WithLocateMode(world.LocateMode(cfg.Generation.Locate)),
	)
	if err != nil {
		return nil, fmt.Errorf("world manager: %w", err)
	}
	hub := network.NewHub(nil, network.HubOptions{
		SendBuffer:   cfg.Server.SendBuffer,
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	})

	srv := &Server{
		cfg:         cfg,
		world:       manager,
		hub:         hub,
		observers:   observer.NewQueue(cfg.Observer.QueueSize),
		logger:      logger,
		deltaBuffer: newDeltaAccumulator(),
		position:    world.Position{X: cfg.Observer.Start.X, Y: cfg.Observer.Start.Y},
	}
	if cfg.Trace.Enabled {
		srv.trace = trace.NewWriter(cfg.Trace.Dir, "drive")
	}
	srv.registerHandlers()
	return srv, nil
}

func (s *Server) registerHandlers() {
	s.hub.OnConnect(s.onConnect)
	s.hub.Register(network.MessageObserverMove, s.onObserverMove)
}

// Handler serves the websocket feed and the HTTP inspection endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Server.FeedPath, s.hub)
	mux.HandleFunc("GET /v1/blocks", s.handleBlocks)
	mux.HandleFunc("GET /v1/preview.png", s.handlePreview)
	return mux
}

func (s *Server) World() *world.Manager {
	return s.world
}

// Position returns the observer position used by the last drive cycle.
func (s *Server) Position() world.Position {
	s.posMu.RLock()
	defer s.posMu.RUnlock()
	return s.position
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Listen, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.closeTrace()

	// The first window is built before any client can connect.
	s.driveTick(ctx, 0)

	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Printf("serving %s on %s", s.cfg.Server.FeedPath, ln.Addr())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.loop(ctx)
	})
	err := g.Wait()
	s.logger.Printf("stopped after %d drive cycles", s.cycleCount())
	return err
}

func (s *Server) loop(ctx context.Context) error {
	drive := newDriveEngine(s, s.cfg.Server.DriveRate.Duration())
	drive.Start(ctx)
	defer drive.Wait()

	streamTicker := time.NewTicker(s.cfg.Server.StreamRate.Duration())
	defer streamTicker.Stop()

	var keepAliveC <-chan time.Time
	if interval := s.cfg.Server.KeepAliveInterval.Duration(); interval > 0 {
		keepAliveTicker := time.NewTicker(interval)
		keepAliveC = keepAliveTicker.C
		defer keepAliveTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-streamTicker.C:
			s.flushWallDeltas()
		case <-keepAliveC:
			s.broadcast(network.MessageKeepAlive, network.KeepAlive{ServerID: s.cfg.Server.ID, Time: time.Now().UTC()})
		}
	}
}

// driveTick moves the observer to its latest reported position and runs one
// manager cycle, streaming what changed.
func (s *Server) driveTick(ctx context.Context, delta time.Duration) {
	if report, ok := s.observers.Latest(); ok {
		s.posMu.Lock()
		s.position = report.Position
		s.posMu.Unlock()
	}
	pos := s.Position()

	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	report, err := s.world.Drive(ctx, pos)
	if report.Skipped {
		return
	}
	if err != nil {
		s.logger.Printf("drive cycle at %v: %v", report.Center, err)
	}
	s.cycle++

	if len(report.Evicted) > 0 {
		for _, coord := range report.Evicted {
			s.deltaBuffer.drop(coord)
		}
		s.broadcast(network.MessageBlockEvicted, network.BlockEvicted{Coords: report.Evicted})
	}

	generated := make(map[maze.BlockCoord]string, len(report.Generated))
	for _, coord := range report.Generated {
		block, ok := s.world.BlockAt(coord)
		if !ok {
			continue
		}
		state := network.NewBlockState(block)
		generated[coord] = state.Fingerprint
		s.broadcast(network.MessageBlockSnapshot, state)
	}
	for _, change := range report.Changes {
		// Snapshots of new blocks already carry their stitched walls.
		if _, ok := generated[change.Block]; ok {
			continue
		}
		s.deltaBuffer.add(change)
	}

	s.writeTrace(pos, report, generated)
}

func (s *Server) writeTrace(pos world.Position, report world.Report, fingerprints map[maze.BlockCoord]string) {
	if s.trace == nil {
		return
	}
	entry := trace.Entry{
		Time:        time.Now().UTC(),
		Cycle:       s.cycle,
		Observer:    [2]float64{pos.X, pos.Y},
		Center:      report.Center,
		Generated:   report.Generated,
		Evicted:     report.Evicted,
		WallChanges: len(report.Changes),
		DurationUS:  report.Duration.Microseconds(),
	}
	if len(report.Failed) > 0 {
		entry.Failed = make(map[string]string, len(report.Failed))
		for coord, err := range report.Failed {
			entry.Failed[coord.String()] = err.Error()
		}
	}
	if len(fingerprints) > 0 {
		entry.Fingerprints = make(map[string]string, len(fingerprints))
		for coord, fp := range fingerprints {
			entry.Fingerprints[coord.String()] = fp
		}
	}
	if err := s.trace.Write(entry); err != nil {
		s.logger.Printf("trace cycle %d: %v", s.cycle, err)
	}
}

func (s *Server) flushWallDeltas() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	for _, delta := range s.deltaBuffer.flush(s.cfg.Server.ID, &s.deltaSeq) {
		s.broadcast(network.MessageWallDelta, delta)
	}
}

func (s *Server) broadcast(msgType network.MessageType, payload any) {
	if _, err := s.hub.Broadcast(msgType, payload); err != nil {
		s.logger.Printf("broadcast %s: %v", msgType, err)
	}
}

func (s *Server) onConnect(client *network.Client) {
	hello := network.Hello{
		ServerID: s.cfg.Server.ID,
		Params:   s.world.Params(),
		Seed:     s.cfg.Generation.Seed,
		Locate:   s.cfg.Generation.Locate,
	}
	if err := client.Send(network.MessageHello, hello); err != nil {
		s.logger.Printf("hello to %s: %v", client.ID, err)
		return
	}

	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	// Pending deltas describe walls the snapshot already shows.
	if err := client.Send(network.MessageSnapshot, s.snapshot()); err != nil {
		s.logger.Printf("snapshot to %s: %v", client.ID, err)
	}
}

func (s *Server) onObserverMove(ctx context.Context, client *network.Client, env network.Envelope) {
	var move network.ObserverMove
	if err := network.DecodePayload(env, &move); err != nil {
		s.logger.Printf("observer move from %s: %v", client.ID, err)
		return
	}
	s.observers.Enqueue(observer.Report{
		Position: world.Position{X: move.X, Y: move.Y},
		Source:   client.ID,
	})
}

func (s *Server) snapshot() network.Snapshot {
	blocks := s.world.Blocks()
	center, _ := s.world.LastObserverBlock()
	pos := s.Position()
	snap := network.Snapshot{
		Center:   center,
		Observer: network.ObserverMove{X: pos.X, Y: pos.Y},
		Blocks:   make([]network.BlockState, 0, len(blocks)),
	}
	for _, block := range blocks {
		snap.Blocks = append(snap.Blocks, network.NewBlockState(block))
	}
	return snap
}

func (s *Server) handleBlocks(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(s.snapshot()); err != nil {
		s.logger.Printf("encode blocks: %v", err)
	}
}

func (s *Server) handlePreview(rw http.ResponseWriter, r *http.Request) {
	pos := s.Position()
	style := world.PreviewStyle{
		PixelsPerUnit: s.cfg.Preview.PixelsPerUnit,
		Background:    s.cfg.Preview.Background,
		Floor:         s.cfg.Preview.Floor,
		Wall:          s.cfg.Preview.Wall,
		Marker:        s.cfg.Preview.Marker,
		Observer:      &pos,
	}
	img, err := world.RenderPreview(s.world.Blocks(), s.world.Layout(), style)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	if err := png.Encode(rw, img); err != nil {
		s.logger.Printf("encode preview: %v", err)
	}
}

func (s *Server) cycleCount() uint64 {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.cycle
}

func (s *Server) closeTrace() {
	if s.trace == nil {
		return
	}
	if err := s.trace.Close(); err != nil {
		s.logger.Printf("close trace: %v", err)
	}
}
