package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssekit/ssekit/core/sse"
)

// newInstancePair simulates two horizontally scaled instances sharing one
// Redis backend.
func newInstancePair(t *testing.T) (*sse.Manager, *sse.Manager) {
	t.Helper()

	mr := miniredis.RunT(t)

	managerA := sse.NewManager(
		sse.WithBroker(sse.NewRedisBroker(newBrokerClient(t, mr))),
		sse.WithInstanceID("inst-a"),
		sse.WithKeepAliveInterval(0),
	)
	managerB := sse.NewManager(
		sse.WithBroker(sse.NewRedisBroker(newBrokerClient(t, mr))),
		sse.WithInstanceID("inst-b"),
		sse.WithKeepAliveInterval(0),
	)
	t.Cleanup(func() {
		_ = managerA.Shutdown(context.Background())
		_ = managerB.Shutdown(context.Background())
	})
	return managerA, managerB
}

func TestManagerCrossInstanceSend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	managerA, managerB := newInstancePair(t)

	stream, err := managerA.CreateStream(ctx, "c1", "welcome")
	require.NoError(t, err)
	receiveMessage(t, stream, time.Second)

	// B does not own the stream but can still reach the client.
	assert.False(t, managerB.IsLocalClient("c1"))
	assert.True(t, managerB.IsClientConnected(ctx, "c1"))

	require.True(t, managerB.SendToClient(ctx, "c1", "cross"))

	got := receiveMessage(t, stream, 2*time.Second)
	assert.Equal(t, "cross", got.Content)

	// Routing never created local state on the sender.
	assert.Equal(t, 0, managerB.LocalCount())
}

func TestManagerCrossInstanceBroadcast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	managerA, managerB := newInstancePair(t)

	streamA, err := managerA.CreateStream(ctx, "c1", "wa")
	require.NoError(t, err)
	streamB, err := managerB.CreateStream(ctx, "c2", "wb")
	require.NoError(t, err)
	receiveMessage(t, streamA, time.Second)
	receiveMessage(t, streamB, time.Second)

	managerB.Broadcast(ctx, "everyone")

	for name, stream := range map[string]*sse.Stream{"A": streamA, "B": streamB} {
		got := receiveMessage(t, stream, 2*time.Second)
		assert.Equal(t, "everyone", got.Content, "client on instance %s", name)
	}
}

func TestManagerCrossInstanceUnknownClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, managerB := newInstancePair(t)

	assert.False(t, managerB.SendToClient(ctx, "nobody", "x"))
	assert.False(t, managerB.IsClientConnected(ctx, "nobody"))
}

func TestManagerCloseClientClearsDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	managerA, managerB := newInstancePair(t)

	stream, err := managerA.CreateStream(ctx, "c1", "w")
	require.NoError(t, err)
	receiveMessage(t, stream, time.Second)
	require.True(t, managerB.IsClientConnected(ctx, "c1"))

	managerA.CloseClient(ctx, "c1")

	waitDone(t, stream, time.Second)
	assert.False(t, managerB.IsClientConnected(ctx, "c1"))
	assert.False(t, managerB.SendToClient(ctx, "c1", "late"))
}

func TestManagerRefreshKeepsRegistrationAlive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr := miniredis.RunT(t)

	manager := sse.NewManager(
		sse.WithBroker(sse.NewRedisBroker(newBrokerClient(t, mr), sse.WithDirectoryTTL(time.Hour))),
		sse.WithInstanceID("inst-a"),
		sse.WithKeepAliveInterval(0),
		sse.WithRefreshInterval(20*time.Millisecond),
	)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	_, err := manager.CreateStream(ctx, "c1", "w")
	require.NoError(t, err)

	// Burn down the TTL, then give the refresh loop a chance to re-arm it.
	mr.FastForward(30 * time.Minute)
	require.Eventually(t, func() bool {
		return mr.TTL("sse:client:c1") > 30*time.Minute
	}, 2*time.Second, 10*time.Millisecond)
}
