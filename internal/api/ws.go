package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins once the frontend host is fixed
	},
}

// Hub fans engine events out to websocket clients subscribed per trip.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*websocket.Conn]bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*websocket.Conn]bool)}
}

// Run drains the engine's event stream until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case event := <-events:
			h.broadcast(event)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) broadcast(event engine.Event) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients[event.TripID]))
	for conn := range h.clients[event.TripID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			logrus.WithField("trip_id", event.TripID).WithError(err).Debug("websocket write failed, dropping client")
			h.remove(event.TripID, conn)
			conn.Close()
		}
	}
}

func (h *Hub) add(tripID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tripID] == nil {
		h.clients[tripID] = make(map[*websocket.Conn]bool)
	}
	h.clients[tripID][conn] = true
}

func (h *Hub) remove(tripID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[tripID], conn)
	if len(h.clients[tripID]) == 0 {
		delete(h.clients, tripID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tripID, conns := range h.clients {
		for conn := range conns {
			conn.Close()
		}
		delete(h.clients, tripID)
	}
}

// Serve handles GET /ws/trips/:trip_id: upgrades the connection and streams
// the trip's live events until the client goes away.
func (h *Hub) Serve(c *gin.Context) {
	tripID := c.Param("trip_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Error("websocket upgrade failed")
		return
	}

	h.add(tripID, conn)
	logrus.WithField("trip_id", tripID).Debug("websocket client connected")

	// Reads are only used to detect disconnects.
	go func() {
		defer func() {
			h.remove(tripID, conn)
			conn.Close()
			logrus.WithField("trip_id", tripID).Debug("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
