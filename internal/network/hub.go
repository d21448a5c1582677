package network

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned when sending to a disconnected client.
var ErrClientClosed = errors.New("client closed")

// Handler processes one inbound envelope from a client.
type Handler func(ctx context.Context, client *Client, env Envelope)

// Client is one websocket connection fed by a dedicated writer goroutine.
type Client struct {
	ID string

	hub       *Hub
	conn      *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// Send queues a message for the client without blocking. A full queue drops
// the message.
func (c *Client) Send(msgType MessageType, payload any) error {
	data, err := c.hub.prepare(msgType, payload)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.dropped.Add(1)
		return nil
	}
}

// Dropped reports how many messages were discarded on a full queue.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// HubOptions tunes per-client buffering and timeouts.
type HubOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Hub upgrades HTTP requests to websocket clients and fans messages out to
// them.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger
	opts     HubOptions
	seq      atomic.Uint64

	mu        sync.RWMutex
	handlers  map[MessageType][]Handler
	clients   map[*Client]struct{}
	onConnect func(*Client)
}

func NewHub(logger *log.Logger, opts HubOptions) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   logger,
		opts:     opts,
		handlers: make(map[MessageType][]Handler),
		clients:  make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(msgType MessageType, handler Handler) {
	h.mu.Lock()
	h.handlers[msgType] = append(h.handlers[msgType], handler)
	h.mu.Unlock()
}

// OnConnect sets a callback run for every new client once it receives
// broadcasts.
func (h *Hub) OnConnect(fn func(*Client)) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.logger.Printf("upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	client := &Client{
		ID:   r.RemoteAddr,
		hub:  h,
		conn: conn,
		out:  make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.writeLoop(client)

	// Registered before the connect callback so no broadcast issued after its
	// snapshot can be missed.
	h.mu.Lock()
	h.clients[client] = struct{}{}
	onConnect := h.onConnect
	h.mu.Unlock()
	if onConnect != nil {
		onConnect(client)
	}
	h.logger.Printf("client %s connected", client.ID)

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		client.close()
		h.logger.Printf("client %s disconnected", client.ID)
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := Decode(msg)
		if err != nil {
			h.logger.Printf("decode message from %s: %v", client.ID, err)
			continue
		}
		for _, handler := range h.handlersFor(env.Type) {
			handler(ctx, client, env)
		}
	}
}

func (h *Hub) writeLoop(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) handlersFor(msgType MessageType) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Handler(nil), h.handlers[msgType]...)
}

// Broadcast encodes the message once and queues it for every client. It
// returns the number of clients it reached.
func (h *Hub) Broadcast(msgType MessageType, payload any) (int, error) {
	data, err := h.prepare(msgType, payload)
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if err := c.enqueue(data); err == nil {
			sent++
		}
	}
	return sent, nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

func (h *Hub) prepare(msgType MessageType, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return Encode(Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       h.seq.Add(1),
		Payload:   raw,
	})
}

// NewEnvelope builds an outbound envelope for clients that talk to a hub.
func NewEnvelope(msgType MessageType, seq uint64, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return Encode(Envelope{Type: msgType, Timestamp: time.Now().UTC(), Seq: seq, Payload: raw})
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
