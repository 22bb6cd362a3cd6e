// Package hub is the WebSocket gateway: it owns this instance's client
// connections, applies the join-hackathon protocol and delivers bus messages
// to local sockets.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/broadcast"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/registry"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
)

// RecentFetcher supplies the initial backlog pushed to a joining connection.
type RecentFetcher interface {
	Recent(ctx context.Context, hackathonID string, limit int) ([]models.Notification, error)
}

const storeTimeout = 5 * time.Second

type Hub struct {
	registry   *registry.Registry
	recent     RecentFetcher
	fetchLimit int
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	conns   map[string]*connection
	tenants map[string]map[string]*connection
}

func New(reg *registry.Registry, recent RecentFetcher, fetchLimit int, allowedOrigin string, logger *slog.Logger) *Hub {
	if fetchLimit <= 0 {
		fetchLimit = 10
	}
	return &Hub{
		registry:   reg,
		recent:     recent,
		fetchLimit: fetchLimit,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		conns:   make(map[string]*connection),
		tenants: make(map[string]map[string]*connection),
	}
}

// HandleWS upgrades the request and serves the connection until it drops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := newConnection(uuid.NewString(), ws)
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	h.logger.Info("client connected", slog.String("connection_id", c.id))
	go c.writePump()
	h.readPump(c)
}

func (h *Hub) readPump(c *connection) {
	defer h.disconnect(c)
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.logger.Warn("dropping malformed client frame",
				slog.String("connection_id", c.id),
				slog.Any("error", err))
			continue
		}
		if f.Event == models.EventJoinHackathon {
			var hackathonID string
			if err := json.Unmarshal(f.Data, &hackathonID); err != nil || hackathonID == "" {
				h.logger.Warn("join with invalid hackathon id",
					slog.String("connection_id", c.id))
				continue
			}
			h.handleJoin(c, hackathonID)
		}
	}
}

// handleJoin associates the connection with its hackathon (first join wins)
// and pushes the recent-notification backlog to this connection only.
func (h *Hub) handleJoin(c *connection, hackathonID string) {
	h.mu.Lock()
	if c.hackathonID != "" {
		already := c.hackathonID
		h.mu.Unlock()
		if already != hackathonID {
			h.logger.Warn("join ignored, connection already joined",
				slog.String("connection_id", c.id),
				slog.String("hackathon_id", already))
		}
		return
	}
	c.hackathonID = hackathonID
	if h.tenants[hackathonID] == nil {
		h.tenants[hackathonID] = make(map[string]*connection)
	}
	h.tenants[hackathonID][c.id] = c
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.registry.Join(ctx, c.id, hackathonID); err != nil {
		h.logger.Error("registry join failed",
			slog.String("connection_id", c.id),
			slog.String("hackathon_id", hackathonID),
			slog.Any("error", err))
	}
	metrics.ConnectedClients.WithLabelValues(hackathonID).Inc()
	h.logger.Info("client joined",
		slog.String("connection_id", c.id),
		slog.String("hackathon_id", hackathonID))

	h.sendInitial(ctx, c, hackathonID)
}

func (h *Hub) sendInitial(ctx context.Context, c *connection, hackathonID string) {
	recent, err := h.recent.Recent(ctx, hackathonID, h.fetchLimit)
	if err != nil {
		h.logger.Error("initial fetch failed",
			slog.String("hackathon_id", hackathonID),
			slog.Any("error", err))
		return
	}
	data, err := json.Marshal(recent)
	if err != nil {
		h.logger.Error("failed to marshal initial backlog",
			slog.String("hackathon_id", hackathonID),
			slog.Any("error", err))
		return
	}
	payload, err := json.Marshal(frame{Event: models.EventNotificationsInitial, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal initial frame",
			slog.String("hackathon_id", hackathonID),
			slog.Any("error", err))
		return
	}
	if !c.push(payload) {
		h.logger.Warn("initial backlog dropped, send buffer full",
			slog.String("connection_id", c.id))
	}
}

func (h *Hub) disconnect(c *connection) {
	h.mu.Lock()
	delete(h.conns, c.id)
	hackathonID := c.hackathonID
	if hackathonID != "" {
		delete(h.tenants[hackathonID], c.id)
		if len(h.tenants[hackathonID]) == 0 {
			delete(h.tenants, hackathonID)
		}
	}
	h.mu.Unlock()

	close(c.done)
	if hackathonID != "" {
		metrics.ConnectedClients.WithLabelValues(hackathonID).Dec()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := h.registry.Leave(ctx, c.id); err != nil {
			h.logger.Error("registry leave failed",
				slog.String("connection_id", c.id),
				slog.Any("error", err))
		}
	}
	h.logger.Info("client disconnected", slog.String("connection_id", c.id))
}

// Dispatch delivers a bus message to the union of the hackathon room and the
// listed connection ids, once per socket. Connection ids owned by other
// instances are simply not found here; their own gateway delivers them.
func (h *Hub) Dispatch(msg broadcast.Message) {
	payload, err := json.Marshal(frame{Event: msg.Event, Data: msg.Payload})
	if err != nil {
		h.logger.Error("failed to marshal dispatch frame", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	targets := make(map[string]*connection)
	for id, c := range h.tenants[msg.HackathonID] {
		targets[id] = c
	}
	for _, id := range msg.ConnectionIDs {
		if c, ok := h.conns[id]; ok {
			targets[id] = c
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.push(payload) {
			h.logger.Warn("push dropped, send buffer full",
				slog.String("connection_id", c.id),
				slog.String("event", msg.Event))
		}
	}
}

// LocalCount reports how many sockets this instance holds for a hackathon.
func (h *Hub) LocalCount(hackathonID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[hackathonID])
}
