package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/carrysync/carry/pkg/log"
	"github.com/carrysync/carry/pkg/metrics"
	"github.com/carrysync/carry/pkg/operation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out newly accepted operations to every connected replica's
// WebSocket, so a connected client learns about writes without polling
// Pull. Cross-process fan-out between multiple server replicas behind a
// load balancer is pkg/broadcast's job; Hub only handles the in-process
// connections it owns directly.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcastC chan operation.Operation
	stopC      chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
}

func newHub() *Hub {
	return &Hub{
		clients:    map[*websocket.Conn]bool{},
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcastC: make(chan operation.Operation, 256),
		stopC:      make(chan struct{}),
		logger:     log.WithComponent("server.hub"),
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stopC:
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
			h.mu.Unlock()
		case op := <-h.broadcastC:
			h.mu.RLock()
			for c := range h.clients {
				go h.send(c, op)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(c *websocket.Conn, op operation.Operation) {
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.WriteJSON(op); err != nil {
		h.logger.Debug().Err(err).Msg("dropping unreachable websocket client")
		h.unregister <- c
	}
}

func (h *Hub) broadcast(op operation.Operation) {
	select {
	case h.broadcastC <- op:
	default:
		h.logger.Warn().Str("op_id", op.OpID).Msg("broadcast channel full, dropping")
	}
	metrics.BroadcastMessagesTotal.WithLabelValues("out").Inc()
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.register <- conn
	go h.readPump(conn)
}

func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = map[*websocket.Conn]bool{}
}

func (h *Hub) stop() {
	close(h.stopC)
}
