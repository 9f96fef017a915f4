package sse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssekit/ssekit/core/sse"
)

func TestLocalBrokerDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	broker := sse.NewLocalBroker()

	require.NoError(t, broker.RegisterClient(ctx, "c1", "inst-a"))

	instanceID, ok := broker.ClientInstance(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "inst-a", instanceID)

	// Re-registration overwrites, it does not fail.
	require.NoError(t, broker.RegisterClient(ctx, "c1", "inst-b"))
	instanceID, ok = broker.ClientInstance(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "inst-b", instanceID)

	require.NoError(t, broker.UnregisterClient(ctx, "c1"))
	_, ok = broker.ClientInstance(ctx, "c1")
	assert.False(t, ok)

	// Unregistering an absent client is a no-op, not an error.
	require.NoError(t, broker.UnregisterClient(ctx, "c1"))
}

func TestLocalBrokerPublishToClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("invokes the handler synchronously", func(t *testing.T) {
		t.Parallel()

		broker := sse.NewLocalBroker()

		var gotClient, gotMessage string
		broker.Subscribe("inst-a", func(clientID, message string) {
			gotClient, gotMessage = clientID, message
		})

		require.NoError(t, broker.RegisterClient(ctx, "c1", "inst-a"))
		require.NoError(t, broker.PublishToClient(ctx, "c1", "hello"))

		assert.Equal(t, "c1", gotClient)
		assert.Equal(t, "hello", gotMessage)
	})

	t.Run("drops messages for unknown clients", func(t *testing.T) {
		t.Parallel()

		broker := sse.NewLocalBroker()

		invoked := false
		broker.Subscribe("inst-a", func(string, string) { invoked = true })

		require.NoError(t, broker.PublishToClient(ctx, "nobody", "x"))
		assert.False(t, invoked)
	})

	t.Run("later subscription replaces the handler", func(t *testing.T) {
		t.Parallel()

		broker := sse.NewLocalBroker()
		require.NoError(t, broker.RegisterClient(ctx, "c1", "inst-a"))

		var first, second int
		broker.Subscribe("inst-a", func(string, string) { first++ })
		broker.Subscribe("inst-a", func(string, string) { second++ })

		require.NoError(t, broker.PublishToClient(ctx, "c1", "x"))

		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
	})
}

func TestLocalBrokerBroadcast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	broker := sse.NewLocalBroker()

	var got []string
	broker.SubscribeBroadcast(func(message string) {
		got = append(got, message)
	})

	require.NoError(t, broker.PublishBroadcast(ctx, "ping"))
	assert.Equal(t, []string{"ping"}, got)

	// Without a handler the publish is a silent no-op.
	other := sse.NewLocalBroker()
	require.NoError(t, other.PublishBroadcast(ctx, "lost"))
}

func TestLocalBrokerAvailable(t *testing.T) {
	t.Parallel()

	broker := sse.NewLocalBroker()
	assert.True(t, broker.Available(context.Background()))

	require.NoError(t, broker.Close())
	_, ok := broker.ClientInstance(context.Background(), "c1")
	assert.False(t, ok)
}
