package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func nextFrame(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case raw := <-c.send:
		msg, err := ParseMessage(raw)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func connect(t *testing.T, hub *Hub, actorID string, roles ...string) *Client {
	t.Helper()
	c := NewClient(hub, nil, &ClientAuth{ActorID: actorID, Roles: roles})
	hub.Register <- c
	assert.Equal(t, EventTypeConnected, nextFrame(t, c).Type)
	return c
}

func TestHubDeliversToSubscribersOnly(t *testing.T) {
	hub := startHub(t)
	subscribed := connect(t, hub, "agent-1")
	other := connect(t, hub, "agent-2")

	require.True(t, subscribed.Subscribe(ChannelSync))
	require.True(t, hub.Publish(ChannelSync, NewMessage(EventTypeSyncOutcome, map[string]string{"status": "failed"})))

	msg := nextFrame(t, subscribed)
	assert.Equal(t, EventTypeSyncOutcome, msg.Type)

	select {
	case <-other.send:
		t.Fatal("unsubscribed client received a sync event")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, hub.TotalClients())
}

func TestSystemChannelIsDefault(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "agent-1")

	hub.BroadcastSystemAlert("warning", "migration", "started")
	assert.Equal(t, EventTypeSystemAlert, nextFrame(t, c).Type)
}

func TestMigrationChannelRequiresAdmin(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	agent := NewClient(hub, nil, &ClientAuth{ActorID: "agent-1"})
	admin := NewClient(hub, nil, &ClientAuth{ActorID: "ops", Roles: []string{"admin"}})

	assert.False(t, agent.Subscribe(ChannelMigration))
	assert.True(t, admin.Subscribe(ChannelMigration))
	assert.False(t, admin.Subscribe(ChannelType("billing")))
}

func TestClientSubscribeFrame(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	c := NewClient(hub, nil, &ClientAuth{ActorID: "agent-1"})

	frame, err := json.Marshal(Message{
		Type: EventTypeSubscribe,
		Data: SubscribeRequest{Channels: []ChannelType{ChannelMerge, ChannelMigration}},
	})
	require.NoError(t, err)
	c.handleMessage(frame)

	reply := nextFrame(t, c)
	assert.Equal(t, EventTypeSubscribe, reply.Type)
	assert.True(t, c.IsSubscribed(ChannelMerge))
	assert.False(t, c.IsSubscribed(ChannelMigration))

	data := reply.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"migration"}, data["rejected"])
}

func TestClientPing(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	c := NewClient(hub, nil, &ClientAuth{ActorID: "agent-1"})

	c.handleMessage([]byte(`{"type":"ping"}`))
	assert.Equal(t, EventTypePong, nextFrame(t, c).Type)
}

func TestAuthenticateWithoutVerifier(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	_, err := hub.AuthenticateClient(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPublishAfterShutdown(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, hub.Publish(ChannelSync, NewMessage(EventTypeSyncOutcome, nil)))
}
