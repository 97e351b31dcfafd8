// Package visualizer broadcasts agent lifecycle events to connected
// WebSocket clients: a snapshot on connect, then one event per state
// transition. It has no opinion on layout or rendering; it only ships
// JSON frames.
package visualizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds how long a single client send may block, so one
// slow or wedged browser tab never stalls a broadcast to everyone
// else.
const writeTimeout = 5 * time.Second

// Node is one agent's visual representation in a full_sync frame.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	State string `json:"state"`
}

// Edge is a parent-child delegation link.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Snapshotter supplies the current graph for a newly connected
// client's full_sync frame. The orchestrator implements this.
type Snapshotter interface {
	Snapshot() (nodes []Node, edges []Edge)
}

// connection is one accepted WebSocket client.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks every connected visualizer client and broadcasts agent
// lifecycle frames to all of them.
type Hub struct {
	logger      *slog.Logger
	snapshotter Snapshotter

	mu          sync.RWMutex
	connections map[string]*connection
}

// NewHub constructs a Hub. snapshotter may be nil during tests that
// never exercise full_sync.
func NewHub(snapshotter Snapshotter, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger.With("component", "visualizer"),
		snapshotter: snapshotter,
		connections: make(map[string]*connection),
	}
}

// SetSnapshotter installs the graph source for full_sync frames. It
// exists because the snapshotter (the orchestrator) is typically
// constructed after the hub it broadcasts through.
func (h *Hub) SetSnapshotter(s Snapshotter) {
	h.mu.Lock()
	h.snapshotter = s
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket connection and blocks
// for the connection's lifetime. Hub is a plain http.Handler, mounted
// directly on the visualizer's http.Server.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.handleConnection(r.Context(), conn)
}

func (h *Hub) handleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.New().String(), conn: conn, ctx: ctx, cancel: cancel}

	h.mu.Lock()
	h.connections[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("visualizer client connected", "connection", c.id)

	defer func() {
		h.mu.Lock()
		delete(h.connections, c.id)
		h.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug("visualizer client disconnected", "connection", c.id)
	}()

	h.mu.RLock()
	snap := h.snapshotter
	h.mu.RUnlock()
	if snap != nil {
		nodes, edges := snap.Snapshot()
		h.sendJSON(c, frame{Type: "full_sync", Payload: fullSyncPayload{Nodes: nodes, Edges: edges}})
	}

	// The visualizer is send-only from the server's perspective; the
	// read loop exists solely to notice the client going away.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type fullSyncPayload struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BroadcastAgentCreated announces a newly admitted agent and, when it
// has a parent, the delegation edge into it.
func (h *Hub) BroadcastAgentCreated(node Node, parentID string) {
	payload := map[string]any{"node": node}
	if parentID != "" {
		payload["edge"] = Edge{From: parentID, To: node.ID}
	}
	h.broadcast(frame{Type: "agent_created", Payload: payload})
}

// BroadcastAgentStateChanged announces an agent's lifecycle transition.
func (h *Hub) BroadcastAgentStateChanged(agentID, state string) {
	h.broadcast(frame{Type: "agent_state_changed", Payload: map[string]any{
		"id":    agentID,
		"state": state,
	}})
}

func (h *Hub) broadcast(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("failed to marshal visualizer frame", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.sendRaw(c, data)
	}
}

func (h *Hub) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal visualizer frame", "connection", c.id, "error", err)
		return
	}
	h.sendRaw(c, data)
}

func (h *Hub) sendRaw(c *connection, data []byte) {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Warn("failed to send visualizer frame", "connection", c.id, "error", err)
	}
}

// ConnectionCount reports the number of currently connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
