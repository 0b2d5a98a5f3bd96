package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nymtech/ephemera/core"
)

// hub fans out every delivered (block, certificate) pair to connected
// WebSocket clients (spec §6 "WS push of deliveries"). It implements
// broadcast.Subscriber so the coordinator can push directly into it.
// Grounded on SAGE-X's websocket.WSServer connection-tracking shape,
// simplified to a push-only feed (the node never expects client frames).
type hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade failed: %v", err)
		return
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	// The feed is push-only; read until the client disconnects so the
	// server notices a closed connection.
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// OnDelivery implements broadcast.Subscriber.
func (h *hub) OnDelivery(block *core.Block, cert *core.Certificate) {
	payload := blockResponse{Block: block, Certificate: cert}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(payload); err != nil {
			log.Printf("[api] ws push failed: %v", err)
			h.remove(c)
		}
	}
}
