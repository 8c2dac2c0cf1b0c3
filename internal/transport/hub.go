package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 70 * time.Second
	pingPeriod = 30 * time.Second

	sendBuffer = 64
)

// Conn is one attached WebSocket connection with its address subscriptions.
type Conn struct {
	ws        *websocket.Conn
	send      chan []byte
	userID    string
	closeOnce sync.Once
}

func (c *Conn) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Conn) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub is the in-process pub/sub transport. Connections subscribe to
// addresses; Publish fans a payload out to every subscriber of the
// address. A publish with no subscriber is dropped without error.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Conn]struct{} // address -> subscribers
	conns  map[*Conn][]string            // conn -> its subscriptions
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Conn]struct{}),
		conns:  make(map[*Conn][]string),
		logger: logger,
	}
}

// Attach registers a connection and subscribes it to the user's private
// addresses. The caller must run the returned connection's pumps.
func (h *Hub) Attach(ws *websocket.Conn, userID string) *Conn {
	conn := &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
	}

	h.mu.Lock()
	h.conns[conn] = nil
	h.mu.Unlock()

	for _, addr := range PrivateAddresses(userID) {
		h.Subscribe(conn, addr)
	}
	return conn
}

// Subscribe adds the connection to an address.
func (h *Hub) Subscribe(conn *Conn, address string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, known := h.conns[conn]; !known {
		return
	}
	bucket, ok := h.subs[address]
	if !ok {
		bucket = make(map[*Conn]struct{})
		h.subs[address] = bucket
	}
	bucket[conn] = struct{}{}
	h.conns[conn] = append(h.conns[conn], address)
}

// Unsubscribe removes the connection from an address.
func (h *Hub) Unsubscribe(conn *Conn, address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(conn, address)
}

func (h *Hub) unsubscribeLocked(conn *Conn, address string) {
	if bucket, ok := h.subs[address]; ok {
		delete(bucket, conn)
		if len(bucket) == 0 {
			delete(h.subs, address)
		}
	}
	addrs := h.conns[conn]
	for i, a := range addrs {
		if a == address {
			h.conns[conn] = append(addrs[:i], addrs[i+1:]...)
			break
		}
	}
}

// Detach drops the connection and all its subscriptions.
func (h *Hub) Detach(conn *Conn) {
	h.mu.Lock()
	addrs := h.conns[conn]
	for _, a := range addrs {
		if bucket, ok := h.subs[a]; ok {
			delete(bucket, conn)
			if len(bucket) == 0 {
				delete(h.subs, a)
			}
		}
	}
	delete(h.conns, conn)
	h.mu.Unlock()

	conn.closeSend()
	if conn.ws != nil {
		_ = conn.ws.Close()
	}
}

// Publish delivers the payload to every current subscriber of the
// address. Slow consumers are disconnected rather than blocking the
// publish.
func (h *Hub) Publish(address string, payload any) error {
	data, err := json.Marshal(envelope{Address: address, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.Lock()
	var targets []*Conn
	if bucket, ok := h.subs[address]; ok {
		targets = make([]*Conn, 0, len(bucket))
		for conn := range bucket {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if !conn.trySend(data) {
			h.logger.Warn("transport subscriber too slow, dropping connection",
				"address", address, "user_id", conn.userID)
			h.Detach(conn)
		}
	}
	return nil
}

// envelope is the wire frame delivered to subscribers.
type envelope struct {
	Address string `json:"address"`
	Payload any    `json:"payload"`
}

// clientFrame is what a connected client may send upward: address
// subscription management. Everything else arrives over the HTTP API.
type clientFrame struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// ReadPump consumes subscription frames until the connection drops, then
// detaches it.
func (h *Hub) ReadPump(conn *Conn) {
	defer h.Detach(conn)

	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			h.logger.Debug("transport read closed", "user_id", conn.userID, "error", err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			h.logger.Debug("transport bad frame", "user_id", conn.userID, "error", err)
			continue
		}

		switch frame.Type {
		case "subscribe":
			// Clients may only add room broadcast addresses; private
			// addresses of other users are not subscribable.
			if _, ok := parseRoomAddress(frame.Address); ok {
				h.Subscribe(conn, frame.Address)
			}
		case "unsubscribe":
			h.Unsubscribe(conn, frame.Address)
		case "ping":
		}
	}
}

// WritePump drains the send channel to the socket and keeps the
// connection alive with pings.
func (h *Hub) WritePump(conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.send:
			if !ok {
				return
			}
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
