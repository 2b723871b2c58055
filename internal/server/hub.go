package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ayusman/heartreel/internal/detector"
	"github.com/ayusman/heartreel/internal/render"
)

// Outbound message types.
const (
	MsgScene          = "scene"
	MsgCard           = "card"
	MsgFrame          = "frame"
	MsgHeartConfirmed = "heart_confirmed"
	MsgStatus         = "status"
)

// Inbound message types besides the render input events.
const (
	MsgHands       = "hands"
	MsgCameraError = "camera_error"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 20 * time.Second
	maxMessageSize = 64 << 10
)

// Message is the wire envelope for WebSocket messages in both directions.
type Message struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into an envelope of type typ.
func NewMessage(typ string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	now := time.Now().UTC()
	return Message{Type: typ, Ts: &now, Data: raw}, nil
}

// Handler receives what browser clients send.
type Handler interface {
	// HandleInput receives pointer, wheel, pinch and resize events.
	HandleInput(ev render.Event)
	// HandleHands receives a hand frame from a client running its own detector.
	HandleHands(f detector.HandFrame)
	// HandleCameraError receives a client's report that its camera failed.
	HandleCameraError(message string)
}

type handsPayload struct {
	MultiHandLandmarks [][]detector.Point3D `json:"multiHandLandmarks"`
}

type cameraErrorPayload struct {
	Message string `json:"message"`
}

// HubConfig configures a Hub.
type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 64.
	SendBuf int
	// BroadcastBuf is the hub broadcast queue size. Zero means 128.
	BroadcastBuf int
	// Handler receives inbound client messages. Nil drops them.
	Handler Handler
	// Hello returns the messages each new client receives first.
	Hello func() []Message
}

// Hub fans frames and events out to connected browsers and feeds their
// input back to a Handler. It implements render.Renderer.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}
	count   atomic.Int64

	viewport atomic.Pointer[render.Viewport]
}

// NewHub constructs a hub. Call Run to start it.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 64
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger.With("component", "hub"),
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Debug("hub starting")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Debug("hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.count.Store(int64(n))
			h.logger.Info("client connected", "client", c.id, "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.remove(c, "disconnect")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.remove(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		c.closeSend()
		delete(h.clients, c)
	}
	h.count.Store(0)
}

func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.count.Store(int64(n))
		_ = c.conn.Close()
		c.closeSend()
		h.logger.Info("client disconnected", "client", c.id, "reason", reason, "clients", n)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// BroadcastBytes queues an encoded message for every client. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) BroadcastBytes(msg []byte) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Debug("broadcast queue full, dropping message", "bytes", len(msg))
		return false
	}
}

// Publish encodes data as a message of type typ and broadcasts it.
func (h *Hub) Publish(typ string, data any) error {
	m, err := NewMessage(typ, data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	h.BroadcastBytes(b)
	return nil
}

// Resize records the viewport the loop renders for.
func (h *Hub) Resize(v render.Viewport) {
	h.viewport.Store(&v)
}

// Viewport returns the last viewport passed to Resize.
func (h *Hub) Viewport() render.Viewport {
	if v := h.viewport.Load(); v != nil {
		return *v
	}
	return render.Viewport{}
}

// Render broadcasts the frame state. Frames are skipped while nobody is
// connected.
func (h *Hub) Render(f render.FrameState) error {
	if h.Clients() == 0 {
		return nil
	}
	return h.Publish(MsgFrame, f)
}

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

// checkOrigin accepts clients without an Origin header, pages served by
// this server, and pages on a loopback host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &Client{
		id:         uuid.NewString(),
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.cfg.SendBuf),
		remoteAddr: r.RemoteAddr,
		logger:     h.logger,
	}

	if h.cfg.Hello != nil {
		for _, m := range h.cfg.Hello() {
			b, err := json.Marshal(m)
			if err != nil {
				continue
			}
			select {
			case c.send <- b:
			default:
			}
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	// The pumps outlive the request; the hub and connection errors end them.
	go c.writePump()
	go c.readPump()
}

func (h *Hub) dispatch(c *Client, m Message) {
	handler := h.cfg.Handler
	if handler == nil {
		return
	}

	switch m.Type {
	case string(render.EventPointerDown), string(render.EventPointerMove), string(render.EventPointerUp),
		string(render.EventWheel), string(render.EventPinch), string(render.EventResize):
		var ev render.Event
		if len(m.Data) > 0 {
			if err := json.Unmarshal(m.Data, &ev); err != nil {
				c.logger.Debug("bad input event", "client", c.id, "err", err)
				return
			}
		}
		ev.Kind = render.EventKind(m.Type)
		// Resize may also carry the size at the top level.
		if ev.Kind == render.EventResize && ev.Viewport == (render.Viewport{}) && len(m.Data) > 0 {
			_ = json.Unmarshal(m.Data, &ev.Viewport)
		}
		handler.HandleInput(ev)

	case MsgHands:
		var p handsPayload
		if err := json.Unmarshal(m.Data, &p); err != nil {
			c.logger.Debug("bad hands payload", "client", c.id, "err", err)
			return
		}
		handler.HandleHands(detector.ParseMultiHandLandmarks(p.MultiHandLandmarks))

	case MsgCameraError:
		var p cameraErrorPayload
		_ = json.Unmarshal(m.Data, &p)
		if p.Message == "" {
			p.Message = "browser camera unavailable"
		}
		handler.HandleCameraError(p.Message)

	default:
		c.logger.Debug("unknown message type", "client", c.id, "type", m.Type)
	}
}

// Client is one connected browser.
type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes queued messages and keepalive pings. It exits when the
// send queue is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logWriteErr(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logWriteErr(err)
				return
			}
		}
	}
}

func (c *Client) logWriteErr(err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("write pump closed", "client", c.id, "code", code, "reason", text)
		return
	}
	c.logger.Debug("write pump failed", "client", c.id, "err", err)
}

// readPump decodes client messages until the connection fails, then
// unregisters the client.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m Message
		if err := c.conn.ReadJSON(&m); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.logger.Debug("dropping malformed message", "client", c.id, "err", err)
				continue
			}
			if code, text, ok := closeStatus(err); ok {
				c.logger.Debug("read pump closed", "client", c.id, "code", code, "reason", text)
			} else {
				c.logger.Debug("read pump failed", "client", c.id, "err", err)
			}
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.dispatch(c, m)
	}
}
