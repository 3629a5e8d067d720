package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeQuery       = "query"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelStateChanged carries every accepted table change as
// {"key","value","timestamp"}.
const ChannelStateChanged = "state.changed"

// wsSendBufferSize is the per-client outbound queue. A client that falls
// this far behind misses events rather than stalling the relay.
const wsSendBufferSize = 256

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
//
// Filter is only read on subscribe. It is a case-insensitive regular
// expression applied to state.changed keys; it replaces any earlier filter,
// and an empty filter passes every key.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Filter   string   `json:"filter,omitempty"`
}

// WSQueryPayload reads the table over the socket. A non-empty Match selects
// FindByAllSubstrings; otherwise Filter is passed to ListFiltered.
type WSQueryPayload struct {
	Filter string   `json:"filter,omitempty"`
	Match  []string `json:"match,omitempty"`
}

// wsError is the payload of an error frame.
type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are enforced by the CORS middleware.
		return true
	},
}

// wsTimings converts the websocket config section into durations.
type wsTimings struct {
	ping     time.Duration
	pong     time.Duration
	maxBytes int64
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		ping:     cfg.PingDuration(),
		pong:     cfg.PongDuration(),
		maxBytes: int64(cfg.MaxMessageSize),
	}
}

// readDeadline is how long the reader waits for any frame, pong included.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pong)
}

func (t wsTimings) writeDeadline() time.Time {
	return time.Now().Add(t.pong)
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string // token subject from the ticket; empty when auth is off

	mu       sync.RWMutex
	channels map[string]struct{}
	filter   *regexp.Regexp
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		subject:  subject,
		channels: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades the connection. When auth is enabled a ticket
// from POST /auth/ws-ticket must be passed as ?ticket=.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var subject string
	if s.authEnabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		entry, ok := s.tickets.consume(ticket, time.Now())
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		subject = entry.subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, subject)
	s.hub.Register(client)

	timings := newWSTimings(s.wsCfg)
	go client.writePump(timings)
	go client.readPump(timings)
}

// readPump decodes client frames until the connection fails.
func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.maxBytes)
	//nolint:errcheck // deadline errors surface on the next read
	c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err, "subject", c.subject)
			}
			return
		}
		// Application frames count as liveness too; some browsers never
		// answer protocol pings.
		//nolint:errcheck // deadline errors surface on the next read
		c.conn.SetReadDeadline(t.readDeadline())
		c.dispatch(data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    int
			payload []byte
		)
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // connection is closing anyway
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, payload = websocket.TextMessage, data
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		//nolint:errcheck // a missed deadline fails the write below
		c.conn.SetWriteDeadline(t.writeDeadline())
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}

// dispatch handles one client frame.
func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", ErrCodeBadRequest, "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypeQuery:
		c.query(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.replyError(msg.ID, ErrCodeBadRequest, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) subscribe(msg WSMessage) {
	var sub WSSubscribePayload
	if err := decodePayload(msg.Payload, &sub); err != nil {
		c.replyError(msg.ID, ErrCodeBadRequest, "invalid subscribe payload")
		return
	}
	filter, err := statestore.CompileFilter(sub.Filter)
	if err != nil {
		c.replyError(msg.ID, ErrCodeInvalidPattern, err.Error())
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	c.filter = filter
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"channels", sub.Channels,
		"filter", sub.Filter,
		"subject", c.subject)

	c.reply(msg.ID, WSTypeResponse, map[string]any{
		"subscribed": sub.Channels,
		"filter":     sub.Filter,
	})
}

func (c *WSClient) unsubscribe(msg WSMessage) {
	var sub WSSubscribePayload
	if err := decodePayload(msg.Payload, &sub); err != nil {
		c.replyError(msg.ID, ErrCodeBadRequest, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{
		"unsubscribed": sub.Channels,
	})
}

// query answers from the table, mirroring the REST and MQTT read paths.
func (c *WSClient) query(msg WSMessage) {
	var q WSQueryPayload
	if msg.Payload != nil {
		if err := decodePayload(msg.Payload, &q); err != nil {
			c.replyError(msg.ID, ErrCodeBadRequest, "invalid query payload")
			return
		}
	}

	if len(q.Match) > 0 {
		doc, ok := c.hub.table.FindByAllSubstrings(q.Match)
		if !ok {
			c.replyError(msg.ID, ErrCodeNotFound, "no key contains all substrings")
			return
		}
		c.reply(msg.ID, WSTypeResponse, doc)
		return
	}

	doc, err := c.hub.table.ListFiltered(q.Filter)
	switch {
	case errors.Is(err, statestore.ErrInvalidPattern):
		c.replyError(msg.ID, ErrCodeInvalidPattern, err.Error())
	case err != nil:
		c.replyError(msg.ID, ErrCodeInternal, err.Error())
	default:
		c.reply(msg.ID, WSTypeResponse, doc)
	}
}

// wants reports whether an event for key on channel should reach this client.
func (c *WSClient) wants(channel, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	return c.filter == nil || c.filter.MatchString(key)
}

// trySend queues data without blocking. Frames for a slow client are
// dropped, and a send racing with Unregister is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket reply", "type", msgType, "error", err)
		return
	}
	c.trySend(data)
}

func (c *WSClient) replyError(id, code, message string) {
	c.reply(id, WSTypeError, wsError{Code: code, Message: message})
}

// decodePayload re-decodes a generically parsed payload into dst.
func decodePayload(payload any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
