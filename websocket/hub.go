package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/services"
)

const clientBuffer = 32

var _ services.EventPublisher = (*Hub)(nil)

type Client struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{ID: uuid.New(), Conn: conn, send: make(chan []byte, clientBuffer)}
}

// Hub fans slot events out to every connected subscriber. A subscriber that
// cannot keep up is dropped rather than allowed to stall the others.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	clients    map[*Client]struct{}
	stopped    chan struct{}
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*Client]struct{}),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug("ws client registered", zap.String("client_id", c.ID.String()), zap.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Debug("ws client unregistered", zap.String("client_id", c.ID.String()))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("ws client too slow, dropping", zap.String("client_id", c.ID.String()))
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) Publish(ctx context.Context, event services.SlotEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handler serves GET /ws/slots. Subscribers only receive; anything they send
// is read and discarded so close frames are noticed.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := newClient(conn)
		select {
		case h.register <- client:
		case <-h.stopped:
			conn.Close()
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			// The hub closes send when it drops the client; closing the
			// conn then unblocks the read loop below.
			defer conn.Close()
			for msg := range client.send {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Debug("ws write failed", zap.String("client_id", client.ID.String()), zap.Error(err))
					return
				}
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					h.log.Debug("ws read failed", zap.String("client_id", client.ID.String()), zap.Error(err))
				}
				break
			}
		}

		select {
		case h.unregister <- client:
		case <-h.stopped:
		}
		conn.Close()
		<-done
	})
}
