package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"linguachat/apperr"
	"linguachat/logging"
	"linguachat/metrics"
	"linguachat/models"
	"linguachat/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 30 * time.Second
	pongWait       = 300 * time.Second
	pingPeriod     = 240 * time.Second
	maxMessageSize = 1 << 16
	sendBuffer     = 256
)

var ErrShuttingDown = errors.New("websocket hub is shutting down")

type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	closing    atomic.Bool

	subs    *services.SubscriptionService
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu sync.RWMutex
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity models.Identity
	ctx      context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger

	mu      sync.Mutex
	streams map[string]context.CancelFunc
}

func NewHub(subs *services.SubscriptionService, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		subs:       subs,
		metrics:    m,
		log:        logging.For("ws"),
	}
}

// Run owns client registration until ctx ends, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.cancel()
				delete(h.clients, c)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing.Load() {
		c.cancel()
		return
	}
	h.clients[c] = true
	h.metrics.ConnectionOpened()
	c.log.Debug().Int("clients", len(h.clients)).Msg("client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.metrics.ConnectionClosed()
		c.log.Debug().Int("clients", len(h.clients)).Msg("client disconnected")
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown refuses new connections, closes the open ones and waits for them
// to unregister or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closing.Store(true)
	h.mu.RLock()
	for c := range h.clients {
		c.cancel()
	}
	h.mu.RUnlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for h.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stopped:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request for an already authenticated identity.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	if h.closing.Load() {
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}
	log := h.log.With().Str(logging.USER, identity.Username).Logger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: identity,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
		streams:  make(map[string]context.CancelFunc),
	}
	select {
	case h.register <- client:
	case <-h.stopped:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.sendError("", apperr.Invalid("malformed frame"))
			continue
		}

		switch f.Type {
		case TypePing:
			c.sendFrame(Frame{Type: TypePong})
		case TypePong:
		case TypeSubscribe:
			c.subscribe(f.ID, f.Stream)
		case TypeComplete:
			c.complete(f.ID)
		default:
			c.sendError(f.ID, apperr.Invalid("unknown frame type "+f.Type))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		}
	}
}

func (c *Client) subscribe(id, stream string) {
	if id == "" {
		c.sendError("", apperr.Invalid("subscription id is required"))
		return
	}
	c.mu.Lock()
	if _, dup := c.streams[id]; dup {
		c.mu.Unlock()
		c.sendError(id, apperr.Invalid("subscription id "+id+" is already in use"))
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.streams[id] = cancel
	c.mu.Unlock()

	var err error
	switch stream {
	case StreamNewMessage:
		var ch <-chan models.Message
		if ch, err = c.hub.subs.NewMessages(ctx, &c.identity); err == nil {
			go forward(ctx, c, id, stream, ch)
		}
	case StreamNewReaction:
		var ch <-chan models.Reaction
		if ch, err = c.hub.subs.NewReactions(ctx, &c.identity); err == nil {
			go forward(ctx, c, id, stream, ch)
		}
	default:
		err = apperr.Invalid("unknown stream " + stream)
	}
	if err != nil {
		c.drop(id)
		c.sendError(id, err)
		return
	}
	c.log.Debug().Str("stream", stream).Str("id", id).Msg("subscribed")
}

// complete stops the stream with id. Completing an unknown id is a no-op.
func (c *Client) complete(id string) {
	if c.drop(id) {
		c.sendFrame(Frame{Type: TypeComplete, ID: id})
	}
}

func (c *Client) drop(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.streams[id]
	if ok {
		cancel()
		delete(c.streams, id)
	}
	return ok
}

// forward relays stream items as next frames. When the source ends on its
// own (bus closed) the client is told with a complete frame.
func forward[T any](ctx context.Context, c *Client, id, stream string, ch <-chan T) {
	for item := range ch {
		payload, err := json.Marshal(item)
		if err != nil {
			c.log.Error().Err(err).Str("stream", stream).Msg("encode payload")
			continue
		}
		c.sendFrame(Frame{Type: TypeNext, ID: id, Stream: stream, Payload: payload})
	}
	if ctx.Err() == nil && c.drop(id) {
		c.sendFrame(Frame{Type: TypeComplete, ID: id})
	}
}

func (c *Client) sendError(id string, err error) {
	payload, _ := json.Marshal(ErrorPayload{Code: apperr.CodeOf(err), Message: apperr.MessageOf(err)})
	c.sendFrame(Frame{Type: TypeError, ID: id, Payload: payload})
}

func (c *Client) sendFrame(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		c.log.Error().Err(err).Msg("encode frame")
		return
	}
	select {
	case c.send <- b:
	case <-c.ctx.Done():
	}
}
