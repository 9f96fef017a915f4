package sse_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssekit/ssekit/core/sse"
)

func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	t.Run("installs a fresh mapping", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		connectionID, stream := registry.Create("c1", time.Minute, 0)

		require.NotNil(t, stream)
		assert.Equal(t, connectionID, stream.ConnectionID())
		assert.True(t, registry.Contains("c1"))
		assert.Equal(t, 1, registry.Count())

		got, ok := registry.ConnectionID("c1")
		require.True(t, ok)
		assert.Equal(t, connectionID, got)
	})

	t.Run("replacement retires the previous stream", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		firstID, first := registry.Create("c1", time.Minute, 0)
		secondID, second := registry.Create("c1", time.Minute, 0)

		assert.NotEqual(t, firstID, secondID)

		// The old stream must be closed, not left dangling.
		select {
		case <-first.Done():
		case <-time.After(time.Second):
			t.Fatal("retired stream was not completed")
		}

		assert.Equal(t, 1, registry.Count())
		current, ok := registry.Get("c1")
		require.True(t, ok)
		assert.Same(t, second, current)
	})
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	t.Run("removes and completes the stream", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		_, stream := registry.Create("c1", time.Minute, 0)

		assert.True(t, registry.Remove("c1"))
		assert.False(t, registry.Contains("c1"))
		assert.Equal(t, 0, registry.Count())

		select {
		case <-stream.Done():
		case <-time.After(time.Second):
			t.Fatal("removed stream was not completed")
		}
	})

	t.Run("removing an absent client is a no-op", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		assert.False(t, registry.Remove("nobody"))
	})
}

func TestRegistryRemoveConnection(t *testing.T) {
	t.Parallel()

	t.Run("superseded connection cannot remove its successor", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		firstID, _ := registry.Create("c1", time.Minute, 0)
		secondID, _ := registry.Create("c1", time.Minute, 0)

		// Late cleanup callback for the retired connection.
		assert.False(t, registry.RemoveConnection("c1", firstID))
		assert.True(t, registry.Contains("c1"))

		current, ok := registry.ConnectionID("c1")
		require.True(t, ok)
		assert.Equal(t, secondID, current)
	})

	t.Run("current connection removes the mapping", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		connectionID, stream := registry.Create("c1", time.Minute, 0)

		assert.True(t, registry.RemoveConnection("c1", connectionID))
		assert.False(t, registry.Contains("c1"))

		select {
		case <-stream.Done():
		case <-time.After(time.Second):
			t.Fatal("removed stream was not completed")
		}
	})

	t.Run("idempotent for the same connection", func(t *testing.T) {
		t.Parallel()

		registry := sse.NewRegistry()
		connectionID, _ := registry.Create("c1", time.Minute, 0)

		assert.True(t, registry.RemoveConnection("c1", connectionID))
		assert.False(t, registry.RemoveConnection("c1", connectionID))
	})
}

func TestRegistryClientIDs(t *testing.T) {
	t.Parallel()

	registry := sse.NewRegistry()
	registry.Create("c1", time.Minute, 0)
	registry.Create("c2", time.Minute, 0)

	assert.ElementsMatch(t, []string{"c1", "c2"}, registry.ClientIDs())
}

func TestRegistryClear(t *testing.T) {
	t.Parallel()

	registry := sse.NewRegistry()
	_, first := registry.Create("c1", time.Minute, 0)
	_, second := registry.Create("c2", time.Minute, 0)

	registry.Clear()

	assert.Equal(t, 0, registry.Count())
	for _, stream := range []*sse.Stream{first, second} {
		select {
		case <-stream.Done():
		case <-time.After(time.Second):
			t.Fatal("stream survived Clear")
		}
	}
}

func TestRegistryConcurrentReplacement(t *testing.T) {
	t.Parallel()

	registry := sse.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			connectionID, _ := registry.Create("c1", time.Minute, 0)
			registry.RemoveConnection("c1", connectionID)
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the invariant holds: at most one
	// reachable stream for the client.
	assert.LessOrEqual(t, registry.Count(), 1)
}
