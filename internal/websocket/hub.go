// internal/websocket/hub.go
package websocket

import (
	"context"
	"errors"
	"sync"

	"crm-service/internal/metrics"
	"crm-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("unauthorized")

const broadcastBuffer = 256

// Hub fans server events out to connected admin clients, keyed by actor id.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	verifier *jwt.Verifier
	logger   *zap.Logger
}

// BroadcastMessage targets every subscriber of Channel, or only ActorIDs when
// set.
type BroadcastMessage struct {
	ActorIDs []string
	Channel  ChannelType
	Message  *Message
}

func NewHub(verifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, broadcastBuffer),
		done:       make(chan struct{}),
		verifier:   verifier,
		logger:     logger,
	}
}

// AuthenticateClient verifies an access token for a new connection.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if h.verifier == nil {
		return nil, ErrUnauthorized
	}
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return &ClientAuth{
		ActorID:   claims.ActorID(),
		SessionID: claims.ID,
		Roles:     claims.Roles,
	}, nil
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Publish queues msg for delivery. It never blocks the caller; when the
// queue is full the event is dropped and logged.
func (h *Hub) Publish(channel ChannelType, msg *Message) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- &BroadcastMessage{Channel: channel, Message: msg}:
		return true
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event",
			zap.String("channel", string(channel)),
			zap.String("type", string(msg.Type)),
		)
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.actorID] == nil {
		h.clients[client.actorID] = make(map[*Client]bool)
	}
	h.clients[client.actorID][client] = true
	total := h.totalClients()
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	h.logger.Info("websocket client connected",
		zap.String("actor_id", client.actorID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.SendMessage(NewMessage(EventTypeConnected, map[string]interface{}{
		"actor_id": client.actorID,
		"roles":    client.roles,
		"channels": []ChannelType{ChannelSystem},
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.actorID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.actorID)
	}
	total := h.totalClients()
	h.mu.Unlock()

	client.Close()
	metrics.WebsocketClients.Set(float64(total))
	h.logger.Info("websocket client disconnected",
		zap.String("actor_id", client.actorID),
		zap.Int("total", total),
	)
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.ActorIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
		return
	}

	for _, actorID := range msg.ActorIDs {
		for client := range h.clients[actorID] {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) BroadcastSystemAlert(severity, title, message string) {
	h.Publish(ChannelSystem, NewMessage(EventTypeSystemAlert, map[string]string{
		"severity": severity,
		"title":    title,
		"message":  message,
	}))
}

// drop unregisters c unless the hub has already stopped.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	metrics.WebsocketClients.Set(0)
}
