package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"go.uber.org/zap"
)

type Client struct {
	ID        string
	CompanyID snowflake.ID
	Send      chan []byte
}

type companyMsg struct {
	companyID snowflake.ID
	msg       []byte
}

// Hub fans committed events out to websocket clients of the same company.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	register chan *Client
	unreg    chan *Client
	outbound chan companyMsg

	log     *zap.Logger
	stop    chan struct{}
	stopped chan struct{}

	nextID atomic.Uint64
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		outbound: make(chan companyMsg, 1024),
		log:      log.Named("realtime.hub"),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (h *Hub) newID() string {
	return fmt.Sprintf("c%d", h.nextID.Add(1))
}

func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			if c.ID == "" {
				c.ID = h.newID()
			}
			h.mu.Lock()
			h.clients[c.ID] = c
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("id", c.ID), zap.Int("total", total))

		case c := <-h.unreg:
			h.mu.Lock()
			if c != nil {
				if _, ok := h.clients[c.ID]; ok {
					delete(h.clients, c.ID)
					close(c.Send)
				}
			}
			h.mu.Unlock()

		case m := <-h.outbound:
			h.mu.Lock()
			for id, c := range h.clients {
				if c.CompanyID != m.companyID {
					continue
				}
				select {
				case c.Send <- m.msg:
				default:
					// slow client
					delete(h.clients, id)
					close(c.Send)
					h.log.Warn("dropped slow client", zap.String("id", id))
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.stop)
	<-h.stopped
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unreg <- c }

// SendToCompany queues msg for every client of companyID. It never blocks;
// a full queue drops the message.
func (h *Hub) SendToCompany(companyID snowflake.ID, msg []byte) bool {
	select {
	case h.outbound <- companyMsg{companyID: companyID, msg: msg}:
		return true
	default:
		return false
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish implements the outbox publisher contract. Websocket delivery is
// best effort and never holds back the relay.
func (h *Hub) Publish(_ context.Context, event eventdomain.DomainEvent) error {
	body, err := json.Marshal(map[string]any{
		"id":         event.ID.String(),
		"type":       event.EventType,
		"payload":    event.Payload,
		"created_at": event.CreatedAt,
	})
	if err != nil {
		return err
	}
	if !h.SendToCompany(event.CompanyID, body) {
		h.log.Warn("realtime queue full", zap.String("event_type", event.EventType))
	}
	return nil
}
