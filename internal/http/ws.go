package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// maxWSMessageSize is the maximum allowed inbound WebSocket message size.
// Clients only send control frames, so this stays small.
const maxWSMessageSize = 4 * 1024

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// wsClient is one push-only WebSocket connection.
type wsClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	slog.Debug("websocket client connected", "client", c.id, "remote", r.RemoteAddr)

	// Subscribe before reading the initial view. Events that arrive in
	// between wait on seqMu and queue behind the initial frames.
	var seq int64
	var seqMu sync.Mutex
	seqMu.Lock()
	s.events.Subscribe(c.id, func(ev bus.Event) {
		frame := protocol.NewEvent(ev.Name, ev.Payload)
		seqMu.Lock()
		seq++
		frame.Seq = seq
		c.sendEvent(frame)
		seqMu.Unlock()
	})
	c.sendEvent(protocol.NewEvent(protocol.EventHealth, map[string]int{"protocol": protocol.ProtocolVersion}))
	c.sendEvent(protocol.NewEvent(protocol.EventPairingState, s.ctrl.View()))
	seqMu.Unlock()

	go c.writePump()
	c.readPump()

	s.events.Unsubscribe(c.id)
	c.close()
	slog.Debug("websocket client disconnected", "client", c.id)
}

// readPump drains inbound frames so pongs and close frames are handled.
func (c *wsClient) readPump() {
	c.conn.SetReadLimit(maxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

// writePump writes frames and pings to the WebSocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues an event frame, dropping it when the buffer is full.
func (c *wsClient) sendEvent(event *protocol.EventFrame) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event failed", "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping event", "client", c.id)
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
