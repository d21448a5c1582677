package main

import (
	"flag"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mazeworld/internal/maze"
	"mazeworld/internal/network"
	"mazeworld/internal/world"
)

// mirror is the client's copy of the server's active window.
type mirror struct {
	mu       sync.Mutex
	params   maze.Params
	layout   world.Layout
	ready    chan struct{}
	blocks   map[maze.BlockCoord]*maze.Block
	position world.Position
	counts   map[network.MessageType]int
	lastSeq  uint64
}

func newMirror() *mirror {
	return &mirror{
		ready:  make(chan struct{}),
		blocks: make(map[maze.BlockCoord]*maze.Block),
		counts: make(map[network.MessageType]int),
	}
}

func (m *mirror) apply(env network.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[env.Type]++
	if env.Seq > m.lastSeq {
		m.lastSeq = env.Seq
	}

	switch env.Type {
	case network.MessageHello:
		var hello network.Hello
		if err := network.DecodePayload(env, &hello); err != nil {
			return err
		}
		m.params = hello.Params
		m.layout = world.NewLayout(hello.Params)
		log.Printf("hello from %s: %dx%d cells, seed %d, locate %s",
			hello.ServerID, hello.Params.Width, hello.Params.Height, hello.Seed, hello.Locate)
	case network.MessageSnapshot:
		var snap network.Snapshot
		if err := network.DecodePayload(env, &snap); err != nil {
			return err
		}
		m.blocks = make(map[maze.BlockCoord]*maze.Block, len(snap.Blocks))
		for _, state := range snap.Blocks {
			if err := m.storeLocked(state); err != nil {
				return err
			}
		}
		m.position = world.Position{X: snap.Observer.X, Y: snap.Observer.Y}
		log.Printf("snapshot: %d blocks around %v", len(snap.Blocks), snap.Center)
		select {
		case <-m.ready:
		default:
			close(m.ready)
		}
	case network.MessageBlockSnapshot:
		var state network.BlockState
		if err := network.DecodePayload(env, &state); err != nil {
			return err
		}
		return m.storeLocked(state)
	case network.MessageBlockEvicted:
		var evicted network.BlockEvicted
		if err := network.DecodePayload(env, &evicted); err != nil {
			return err
		}
		for _, coord := range evicted.Coords {
			delete(m.blocks, coord)
		}
	case network.MessageWallDelta:
		var delta network.WallDelta
		if err := network.DecodePayload(env, &delta); err != nil {
			return err
		}
		if block, ok := m.blocks[delta.Block]; ok {
			delta.Apply(block)
		}
	case network.MessageKeepAlive:
	default:
		log.Printf("ignoring %s", env.Type)
	}
	return nil
}

func (m *mirror) storeLocked(state network.BlockState) error {
	block, err := state.Block(m.params)
	if err != nil {
		return err
	}
	m.blocks[state.Coord] = block
	return nil
}

// step picks a random open direction from the current cell and returns the
// centre of the neighbouring cell.
func (m *mirror) step(rng *rand.Rand) (world.Position, maze.Direction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coord, cell := m.layout.CellAt(m.position)
	block, ok := m.blocks[coord]
	if !ok {
		return m.position, 0, false
	}
	var open []maze.Direction
	for _, d := range maze.Directions {
		if block.IsWallOpen(cell.X, cell.Y, d) {
			open = append(open, d)
		}
	}
	if len(open) == 0 {
		return m.position, 0, false
	}
	d := open[rng.Intn(len(open))]
	dx, dy := d.Offset()
	m.position = world.Position{
		X: m.position.X + float64(dx)*m.params.CellSize,
		Y: m.position.Y + float64(dy)*m.params.CellSize,
	}
	return m.position, d, true
}

func (m *mirror) summary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.counts))
	for t := range m.counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		log.Printf("  %-14s %d", t, m.counts[network.MessageType(t)])
	}
	log.Printf("holding %d blocks, last seq %d, observer at (%.2f, %.2f)",
		len(m.blocks), m.lastSeq, m.position.X, m.position.Y)
}

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/v1/feed", "maze server feed URL")
	walk := flag.Int("walk", 50, "random walk steps to send (0 only listens)")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between steps")
	seed := flag.Int64("seed", 0, "random walk seed (0 uses the clock)")
	linger := flag.Duration("linger", time.Second, "time to keep listening after the walk")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	state := newMirror()
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			env, err := network.Decode(data)
			if err != nil {
				log.Printf("decode: %v", err)
				continue
			}
			if err := state.apply(env); err != nil {
				log.Printf("apply %s: %v", env.Type, err)
			}
		}
	}()

	select {
	case <-state.ready:
	case err := <-readErr:
		log.Fatalf("connection closed before snapshot: %v", err)
	case <-time.After(5 * time.Second):
		log.Fatalf("no snapshot received")
	}

	var seq uint64
	for i := 0; i < *walk; i++ {
		pos, d, ok := state.step(rng)
		if !ok {
			log.Printf("step %d: observer cell not in window, waiting", i)
		} else {
			seq++
			data, err := network.NewEnvelope(network.MessageObserverMove, seq, network.ObserverMove{X: pos.X, Y: pos.Y})
			if err != nil {
				log.Fatalf("encode move: %v", err)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Fatalf("send move: %v", err)
			}
			log.Printf("step %d: %s to (%.2f, %.2f)", i, d, pos.X, pos.Y)
		}
		select {
		case err := <-readErr:
			log.Fatalf("connection lost: %v", err)
		case <-time.After(*interval):
		}
	}

	select {
	case err := <-readErr:
		log.Printf("connection closed: %v", err)
	case <-time.After(*linger):
	}
	state.summary()
}
