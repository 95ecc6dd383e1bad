// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/logging"
)

const (
	clientBuffer = 256
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

// EventMessage is the JSON form of an engine.Event sent to websocket
// listeners.
type EventMessage struct {
	Time        time.Time `json:"time"`
	Stage       string    `json:"stage"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	Src         string    `json:"src,omitempty"`
	Dst         string    `json:"dst,omitempty"`
	Protocol    string    `json:"protocol,omitempty"`
	SrcPort     uint16    `json:"src_port,omitempty"`
	DstPort     uint16    `json:"dst_port,omitempty"`
	Length      int       `json:"length,omitempty"`
	Translation string    `json:"translation,omitempty"`
	NewMapping  bool      `json:"new_mapping,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewEventMessage converts ev for the wire.
func NewEventMessage(ev engine.Event) EventMessage {
	m := EventMessage{
		Time:       ev.Time.UTC(),
		Stage:      ev.Stage.String(),
		Allowed:    ev.Allowed,
		Reason:     string(ev.Reason),
		Length:     ev.Frame.Length,
		NewMapping: ev.NewMapping,
	}
	if ev.Frame.Src.IsValid() {
		m.Src = ev.Frame.Src.String()
		m.Dst = ev.Frame.Dst.String()
		m.Protocol = ev.Frame.Transport.String()
	}
	if ev.Frame.HasPorts() {
		m.SrcPort = ev.Frame.SrcPort
		m.DstPort = ev.Frame.DstPort
	}
	if ev.Translation.IsValid() {
		m.Translation = ev.Translation.String()
	}
	if ev.Err != nil {
		m.Error = ev.Err.Error()
	}
	return m
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// stages is set when the listener asked for per-stage events, not just
	// verdicts.
	stages bool
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans dispatcher events out to websocket listeners. Record never
// blocks: a listener whose buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *logging.Logger
	dropped  atomic.Uint64
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.WithComponent("events")
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// Record implements engine.EventSink.
func (h *Hub) Record(ev engine.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	verdict := ev.Stage == engine.StageVerdict
	var payload []byte
	for c := range h.clients {
		if !verdict && !c.stages {
			continue
		}
		if payload == nil {
			b, err := json.Marshal(NewEventMessage(ev))
			if err != nil {
				return
			}
			payload = b
		}
		select {
		case c.send <- payload:
		default:
			h.dropped.Add(1)
		}
	}
}

// Len is the number of connected listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped is how many events listeners missed because they fell behind.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the request and streams events until the listener
// goes away. Pass ?stages=true to receive every stage decision.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		stages: r.URL.Query().Get("stages") == "true",
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Debug("Event listener connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// readPump discards inbound messages and notices when the peer leaves.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Close disconnects every listener and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
