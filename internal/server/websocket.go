package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sprout/internal/evolution"
	"sprout/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	clientBacklog  = 16
	broadcastQueue = 64
)

// eventHub fans cycle results out to websocket subscribers. Slow clients
// drop events rather than stall the cycle goroutine.
type eventHub struct {
	logger  logging.Logger
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	events  chan evolution.CycleResult
	done    chan struct{}
	once    sync.Once
}

type hubClient struct {
	send chan evolution.CycleResult
}

func newEventHub(logger logging.Logger) *eventHub {
	return &eventHub{
		logger:  logging.OrNop(logger),
		clients: make(map[*hubClient]struct{}),
		events:  make(chan evolution.CycleResult, broadcastQueue),
		done:    make(chan struct{}),
	}
}

func (h *eventHub) start() {
	go h.run()
}

func (h *eventHub) run() {
	for {
		select {
		case <-h.done:
			return
		case result := <-h.events:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- result:
				default:
					// Client is behind; dropping is better than blocking
					// the hub.
				}
			}
			h.mu.Unlock()
		}
	}
}

// broadcast is registered as a coordinator cycle listener.
func (h *eventHub) broadcast(result evolution.CycleResult) {
	select {
	case h.events <- result:
	default:
		h.logger.Warn("event queue full, dropping cycle %d event", result.Cycle)
	}
}

func (h *eventHub) subscribe() *hubClient {
	client := &hubClient{send: make(chan evolution.CycleResult, clientBacklog)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	return client
}

func (h *eventHub) unsubscribe(client *hubClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

func (h *eventHub) stop() {
	h.once.Do(func() { close(h.done) })
}

// handleEvents upgrades the connection and streams cycle results as JSON
// frames until the client disconnects.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	client := s.hub.subscribe()
	defer s.hub.unsubscribe(client)

	// Reader goroutine: its only job is to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-s.hub.done:
			return
		case result := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(result); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
