package network

import (
	"encoding/json"
	"fmt"
	"time"

	"mazeworld/internal/maze"
)

type MessageType string

const (
	MessageHello         MessageType = "hello"
	MessageKeepAlive     MessageType = "keepAlive"
	MessageSnapshot      MessageType = "snapshot"
	MessageBlockSnapshot MessageType = "blockSnapshot"
	MessageBlockEvicted  MessageType = "blockEvicted"
	MessageWallDelta     MessageType = "wallDelta"
	MessageObserverMove  MessageType = "observerMove"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type Hello struct {
	ServerID string      `json:"serverId"`
	Params   maze.Params `json:"params"`
	Seed     int64       `json:"seed"`
	Locate   string      `json:"locate"`
}

type KeepAlive struct {
	ServerID string    `json:"serverId"`
	Time     time.Time `json:"time"`
}

// BlockState carries a block's walls as row-major masks.
type BlockState struct {
	Coord       maze.BlockCoord `json:"coord"`
	Fingerprint string          `json:"fingerprint"`
	Walls       []int           `json:"walls"`
}

type Snapshot struct {
	Center   maze.BlockCoord `json:"center"`
	Observer ObserverMove    `json:"observer"`
	Blocks   []BlockState    `json:"blocks"`
}

type BlockEvicted struct {
	Coords []maze.BlockCoord `json:"coords"`
}

type CellChange struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Before int `json:"before"`
	After  int `json:"after"`
}

type WallDelta struct {
	ServerID  string          `json:"serverId"`
	Block     maze.BlockCoord `json:"block"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Cells     []CellChange    `json:"cells"`
}

type ObserverMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func NewBlockState(b *maze.Block) BlockState {
	masks := b.WallMasks()
	walls := make([]int, len(masks))
	for i, m := range masks {
		walls[i] = int(m)
	}
	return BlockState{Coord: b.Coord, Fingerprint: b.Fingerprint(), Walls: walls}
}

// Block rebuilds the block described by the state.
func (s BlockState) Block(params maze.Params) (*maze.Block, error) {
	masks := make([]maze.Direction, len(s.Walls))
	for i, w := range s.Walls {
		if w < 0 || w > 15 {
			return nil, fmt.Errorf("block %v: wall mask %d out of range", s.Coord, w)
		}
		masks[i] = maze.Direction(w)
	}
	return maze.RestoreBlock(s.Coord, params, masks)
}

// Apply writes the delta's after state onto b.
func (d WallDelta) Apply(b *maze.Block) int {
	applied := 0
	for _, c := range d.Cells {
		cell, ok := b.Cell(c.X, c.Y)
		if !ok {
			continue
		}
		cell.Walls = maze.Direction(c.After)
		applied++
	}
	return applied
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env Envelope, v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
