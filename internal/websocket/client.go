// internal/websocket/client.go
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// ClientAuth is the verified operator behind a connection.
type ClientAuth struct {
	ActorID   string
	SessionID string
	Roles     []string
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	actorID   string
	sessionID string
	roles     []string

	subscriptions map[ChannelType]bool
	subMutex      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient starts with a system subscription; everything else is opt-in.
func NewClient(hub *Hub, conn *websocket.Conn, auth *ClientAuth) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		actorID:       auth.ActorID,
		sessionID:     auth.SessionID,
		roles:         auth.Roles,
		subscriptions: map[ChannelType]bool{ChannelSystem: true},
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (c *Client) HasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

// Subscribe adds channel unless it is unknown or the client lacks the role
// for it. Migration events are admin only.
func (c *Client) Subscribe(channel ChannelType) bool {
	if !knownChannels[channel] {
		return false
	}
	if channel == ChannelMigration && !c.HasRole("admin") {
		return false
	}

	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	c.subscriptions[channel] = true
	return true
}

func (c *Client) Unsubscribe(channel ChannelType) {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	delete(c.subscriptions, channel)
}

func (c *Client) IsSubscribed(channel ChannelType) bool {
	c.subMutex.RLock()
	defer c.subMutex.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) ActorID() string {
	return c.actorID
}

// ReadPump handles incoming messages from client
func (c *Client) ReadPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.hub.logger.Warn("websocket read error",
						zap.String("actor_id", c.actorID),
						zap.Error(err),
					)
				}
				return
			}
			c.handleMessage(message)
		}
	}
}

// WritePump handles outgoing messages to client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		c.SendError("invalid_message", "failed to parse message", err.Error())
		return
	}

	switch msg.Type {
	case EventTypePing:
		c.SendMessage(NewMessage(EventTypePong, nil))

	case EventTypeSubscribe:
		var req SubscribeRequest
		if err := decodeData(msg.Data, &req); err != nil {
			c.SendError("invalid_subscribe", "invalid subscribe request", err.Error())
			return
		}
		accepted := make([]ChannelType, 0, len(req.Channels))
		rejected := make([]ChannelType, 0)
		for _, channel := range req.Channels {
			if c.Subscribe(channel) {
				accepted = append(accepted, channel)
			} else {
				rejected = append(rejected, channel)
			}
		}
		c.SendMessage(NewMessage(EventTypeSubscribe, map[string]interface{}{
			"channels": accepted,
			"rejected": rejected,
			"status":   "subscribed",
		}))

	case EventTypeUnsubscribe:
		var req SubscribeRequest
		if err := decodeData(msg.Data, &req); err != nil {
			c.SendError("invalid_unsubscribe", "invalid unsubscribe request", err.Error())
			return
		}
		for _, channel := range req.Channels {
			c.Unsubscribe(channel)
		}
		c.SendMessage(NewMessage(EventTypeUnsubscribe, map[string]interface{}{
			"channels": req.Channels,
			"status":   "unsubscribed",
		}))

	default:
		c.SendError("unsupported_event", "event type is not accepted from clients", string(msg.Type))
	}
}

// SendMessage queues msg. A client whose buffer is full is dropped.
func (c *Client) SendMessage(msg *Message) {
	data, err := msg.ToJSON()
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}

	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket client too slow, dropping",
			zap.String("actor_id", c.actorID),
		)
		go c.hub.drop(c)
	}
}

func (c *Client) SendError(code, message, details string) {
	c.SendMessage(NewMessage(EventTypeError, ErrorData{
		Code:    code,
		Message: message,
		Details: details,
	}))
}

// Close stops both pumps. The send buffer is never closed so late
// broadcasts cannot panic.
func (c *Client) Close() {
	c.cancel()
}
