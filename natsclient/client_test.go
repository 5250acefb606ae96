package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsConnected())
	assert.Equal(t, -1, c.maxReconnects)
	assert.Equal(t, "wis2node", c.clientName)
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCredentials("wis2node", "secret"),
		WithClientName("wis2node-test"),
		WithMaxReconnects(5),
		WithReconnectWait(time.Second),
		WithTimeout(2*time.Second),
		WithDrainTimeout(10*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "wis2node", c.username)
	assert.Equal(t, "wis2node-test", c.clientName)
	assert.Equal(t, 5, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
}

func TestNewClient_InvalidOptions(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithClientName(""))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithReconnectWait(0))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithTimeout(-time.Second))
	assert.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(9).String())
}

func TestOperationsRequireConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Subscribe("wis2node.>", func(string, []byte) {})
	assert.Error(t, err)

	err = c.Publish(context.Background(), "wis2node.notifications", []byte("{}"))
	assert.Error(t, err)

	_, err = c.ObjectStore(context.Background(), "wis2node-incoming")
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StatusDisconnected, c.Status())
}
