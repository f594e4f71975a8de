package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"megabridge/internal/domain"
	"megabridge/internal/observability"
	"megabridge/internal/pricing"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	clientSendSize = 8
)

// PriceMessage is pushed to stream clients after every refresh.
type PriceMessage struct {
	Type      string            `json:"type"`
	Prices    domain.PriceTable `json:"prices"`
	FetchedAt int64             `json:"fetchedAt"` // Unix ms
	Degraded  bool              `json:"degraded"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans price updates out to websocket clients.
// A client whose buffer is full is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*streamClient]struct{}),
		logger:  logger,
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends e to every client. It never blocks.
func (h *Hub) Broadcast(e *pricing.Entry) {
	msg, err := encodeEntry(e)
	if err != nil {
		h.logger.Error("encode price message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow stream client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetStreamClients(n)
	h.logger.Info("stream client connected", zap.Int("clients", n))
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	n := len(h.clients)
	h.mu.Unlock()

	if removed {
		h.logger.Info("stream client disconnected", zap.Int("clients", n))
	}
}

// removeLocked closes the client's send channel once; the write loop then closes the conn.
func (h *Hub) removeLocked(c *streamClient) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	observability.SetStreamClients(len(h.clients))
	return true
}

func encodeEntry(e *pricing.Entry) ([]byte, error) {
	return json.Marshal(PriceMessage{
		Type:      "prices",
		Prices:    e.Table,
		FetchedAt: e.FetchedAt.UnixMilli(),
		Degraded:  e.Degraded,
	})
}

// pollPrices asks the cache for prices every streamInterval while clients are
// connected. A stale entry is refreshed and the cache listener broadcasts it.
func (s *Server) pollPrices(ctx context.Context) {
	defer close(s.pollDone)

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.Len() == 0 {
				continue
			}
			if _, err := s.cache.Get(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("stream price poll failed", zap.Error(err))
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handlePriceStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := s.cache.Get(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, msgFetchPrices)
			return
		}
		initial, err := encodeEntry(entry)
		if err != nil {
			writeError(w, http.StatusInternalServerError, msgFetchPrices)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		c := &streamClient{conn: conn, send: make(chan []byte, clientSendSize)}
		c.send <- initial
		s.hub.add(c)

		go s.writeLoop(c)
		s.readLoop(c)
	}
}

// readLoop discards client messages and returns when the connection fails.
func (s *Server) readLoop(c *streamClient) {
	defer s.hub.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.remove(c)
				return
			}
		}
	}
}
