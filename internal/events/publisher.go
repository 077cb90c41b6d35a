// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crm-service/internal/domain/outcome"
	"crm-service/internal/metrics"
	"crm-service/internal/websocket"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultChannel = "crm:events"

	sinkRedis = "redis"
	sinkHub   = "websocket"

	publishTimeout = 3 * time.Second
)

// Event is the envelope published on the Redis channel.
type Event struct {
	ID          string                `json:"id"`
	Origin      string                `json:"origin"`
	Type        websocket.EventType   `json:"type"`
	Channel     websocket.ChannelType `json:"channel"`
	Data        json.RawMessage       `json:"data"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// Broadcaster is the local fan-out, satisfied by *websocket.Hub.
type Broadcaster interface {
	Publish(channel websocket.ChannelType, msg *websocket.Message) bool
}

// Publisher delivers events to Redis subscribers and to the local websocket
// hub. Either sink may be nil. It implements outcome.Reporter.
type Publisher struct {
	redis   redis.UniversalClient
	channel string
	hub     Broadcaster
	origin  string
	logger  *zap.Logger
}

func NewPublisher(client redis.UniversalClient, channel string, hub Broadcaster, logger *zap.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		redis:   client,
		channel: channel,
		hub:     hub,
		origin:  ulid.Make().String(),
		logger:  logger,
	}
}

// Report publishes a secondary outcome. Delivery failures are logged, never
// returned: the primary write has already committed.
func (p *Publisher) Report(ctx context.Context, s outcome.Secondary) {
	channel, eventType := route(s.Operation)
	if err := p.Publish(ctx, channel, eventType, s); err != nil {
		p.logger.Warn("failed to publish outcome",
			zap.String("operation", s.Operation),
			zap.String("subject_id", s.SubjectID),
			zap.Error(err),
		)
	}
}

// Publish sends data to both sinks. The returned error only covers Redis.
func (p *Publisher) Publish(ctx context.Context, channel websocket.ChannelType, eventType websocket.EventType, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	evt := Event{
		ID:          ulid.Make().String(),
		Origin:      p.origin,
		Type:        eventType,
		Channel:     channel,
		Data:        raw,
		PublishedAt: time.Now().UTC(),
	}

	p.toHub(evt)

	if p.redis == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.redis.Publish(pubCtx, p.channel, payload).Err(); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(sinkRedis, metrics.StatusError).Inc()
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(sinkRedis, metrics.StatusSuccess).Inc()
	return nil
}

// Relay forwards events published by other instances to the local hub until
// ctx is done.
func (p *Publisher) Relay(ctx context.Context) error {
	if p.redis == nil || p.hub == nil {
		return nil
	}

	sub := p.redis.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
	}
	p.logger.Info("event relay subscribed", zap.String("channel", p.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				p.logger.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			if evt.Origin == p.origin {
				continue
			}
			p.toHub(evt)
		}
	}
}

func (p *Publisher) toHub(evt Event) {
	if p.hub == nil {
		return
	}
	msg := websocket.NewMessage(evt.Type, evt.Data)
	msg.ID = evt.ID
	msg.Timestamp = evt.PublishedAt

	status := metrics.StatusSuccess
	if !p.hub.Publish(evt.Channel, msg) {
		status = metrics.StatusError
	}
	metrics.EventsPublishedTotal.WithLabelValues(sinkHub, status).Inc()
}

func route(operation string) (websocket.ChannelType, websocket.EventType) {
	switch operation {
	case outcome.OpSenderPropagation:
		return websocket.ChannelSync, websocket.EventTypePropagation
	case outcome.OpCustomerMerge:
		return websocket.ChannelMerge, websocket.EventTypeCustomerMerged
	case outcome.OpMigrationGroup:
		return websocket.ChannelMigration, websocket.EventTypeMigrationGroup
	default:
		return websocket.ChannelSync, websocket.EventTypeSyncOutcome
	}
}
