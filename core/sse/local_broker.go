package sse

import (
	"context"
	"sync"
)

// LocalBroker is the in-process MessageBroker for single-instance
// deployments. The client directory lives in local memory and handlers are
// invoked synchronously on the publisher's goroutine, with no network hop
// and no serialization.
type LocalBroker struct {
	mu          sync.RWMutex
	clients     map[string]string // client id -> instance id
	onMessage   MessageHandler
	onBroadcast BroadcastHandler
}

// NewLocalBroker creates an empty in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		clients: make(map[string]string),
	}
}

// RegisterClient records the owning instance for clientID.
func (b *LocalBroker) RegisterClient(_ context.Context, clientID, instanceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[clientID] = instanceID
	return nil
}

// UnregisterClient removes the directory entry for clientID.
func (b *LocalBroker) UnregisterClient(_ context.Context, clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, clientID)
	return nil
}

// ClientInstance reports the owning instance for clientID.
func (b *LocalBroker) ClientInstance(_ context.Context, clientID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	instanceID, ok := b.clients[clientID]
	return instanceID, ok
}

// PublishToClient invokes the subscribed handler for clientID. Unknown
// clients are dropped silently.
func (b *LocalBroker) PublishToClient(_ context.Context, clientID, message string) error {
	b.mu.RLock()
	handler := b.onMessage
	_, registered := b.clients[clientID]
	b.mu.RUnlock()

	if handler != nil && registered {
		handler(clientID, message)
	}
	return nil
}

// PublishBroadcast invokes the subscribed broadcast handler.
func (b *LocalBroker) PublishBroadcast(_ context.Context, message string) error {
	b.mu.RLock()
	handler := b.onBroadcast
	b.mu.RUnlock()

	if handler != nil {
		handler(message)
	}
	return nil
}

// Subscribe installs the per-client message handler, replacing any previous
// one. The instance id is irrelevant in-process and is ignored.
func (b *LocalBroker) Subscribe(_ string, handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMessage = handler
}

// SubscribeBroadcast installs the broadcast handler, replacing any previous
// one.
func (b *LocalBroker) SubscribeBroadcast(handler BroadcastHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBroadcast = handler
}

// Available always reports true: there is no backend to lose.
func (b *LocalBroker) Available(_ context.Context) bool {
	return true
}

// Close drops all directory entries and handlers.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = make(map[string]string)
	b.onMessage = nil
	b.onBroadcast = nil
	return nil
}
