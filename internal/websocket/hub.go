package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"literas-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	hubModule = "Hub"

	// ClusterChannel carries session events between instances.
	ClusterChannel = "research_events"
)

// clusterMessage is what travels over Redis. Origin lets an instance ignore
// its own echo.
type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

// Hub fans session events out to the watchers of that session, locally and
// through Redis to watchers attached to other instances.
type Hub struct {
	// SessionID -> watchers
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb    *redis.Client
	origin string
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

// Run owns registration until ctx ends. Afterwards Register and Unregister
// act on the client map directly.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		h.add(client)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.remove(client)
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
	h.mu.Unlock()
	h.logger.Info(hubModule, "Watcher registered", map[string]interface{}{"session_id": client.SessionID})
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionID]) == 0 {
		delete(h.clients, client.SessionID)
		h.logger.Info(hubModule, "Session has no watchers left", map[string]interface{}{"session_id": client.SessionID})
	}
}

// Watchers reports how many local clients follow a session.
func (h *Hub) Watchers(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Publish delivers a session event to local watchers and to the cluster.
func (h *Hub) Publish(ctx context.Context, sessionID uuid.UUID, event interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"type":       "research_event",
		"session_id": sessionID,
		"data":       event,
	})
	if err != nil {
		h.logger.Error(hubModule, "Failed to encode event", map[string]interface{}{"error": err})
		return
	}

	h.deliver(sessionID, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.origin, SessionID: sessionID.String(), Message: data})
		if err := h.rdb.Publish(ctx, ClusterChannel, payload).Err(); err != nil {
			h.logger.Warn(hubModule, "Redis publish failed", map[string]interface{}{"error": err})
		}
	}
}

// deliver never blocks; a watcher whose buffer is full is dropped.
func (h *Hub) deliver(sessionID uuid.UUID, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients[sessionID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(hubModule, "Watcher buffer full, dropping watcher", map[string]interface{}{"session_id": sessionID})
		h.remove(c)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn(hubModule, "Bad cluster message", map[string]interface{}{"error": err})
			continue
		}
		if payload.Origin == h.origin {
			continue
		}
		sid, err := uuid.Parse(payload.SessionID)
		if err != nil {
			continue
		}
		h.deliver(sid, payload.Message)
	}
}
