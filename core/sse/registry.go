package sse

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks the streams owned by this instance. It keeps two mappings:
// client id to connection id, and connection id to the open stream. Both are
// single-valued, so at any observation point a client has at most one
// reachable stream on this instance.
//
// All methods are safe for concurrent use from application goroutines and
// from stream termination hooks.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]string  // client id -> connection id
	streams map[string]*Stream // connection id -> stream
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]string),
		streams: make(map[string]*Stream),
	}
}

// Create installs a fresh stream for clientID under a newly generated
// connection id. Any previous stream for the same client is unmapped inside
// the same critical section, so replacement never exposes zero or two live
// mappings; the retired stream is completed after the swap.
func (r *Registry) Create(clientID string, timeout, keepAlive time.Duration) (string, *Stream) {
	connectionID := uuid.NewString()
	stream := newStream(connectionID, timeout, keepAlive)

	r.mu.Lock()
	var retired *Stream
	if oldID, ok := r.clients[clientID]; ok {
		retired = r.streams[oldID]
		delete(r.streams, oldID)
	}
	r.clients[clientID] = connectionID
	r.streams[connectionID] = stream
	r.mu.Unlock()

	// Completing outside the lock: the retired stream's hooks call back into
	// the registry, where the guarded remove no-ops for superseded ids.
	if retired != nil {
		retired.Complete()
	}

	return connectionID, stream
}

// Remove tears down the current mapping for clientID, completing its stream.
// It reports whether a mapping existed.
func (r *Registry) Remove(clientID string) bool {
	r.mu.Lock()
	connectionID, ok := r.clients[clientID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, clientID)
	stream := r.streams[connectionID]
	delete(r.streams, connectionID)
	r.mu.Unlock()

	if stream != nil {
		stream.Complete()
	}
	return true
}

// RemoveConnection tears down the mapping for connectionID only if it is
// still the current connection for clientID. It reports whether the client
// mapping was removed, which is false when a newer connection has already
// superseded this one. The stream for connectionID is completed either way.
func (r *Registry) RemoveConnection(clientID, connectionID string) bool {
	r.mu.Lock()
	current, ok := r.clients[clientID]
	owned := ok && current == connectionID
	if owned {
		delete(r.clients, clientID)
	}
	stream := r.streams[connectionID]
	delete(r.streams, connectionID)
	r.mu.Unlock()

	if stream != nil {
		stream.Complete()
	}
	return owned
}

// Get returns the open stream for clientID, if any.
func (r *Registry) Get(clientID string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionID, ok := r.clients[clientID]
	if !ok {
		return nil, false
	}
	stream, ok := r.streams[connectionID]
	return stream, ok
}

// ConnectionID returns the current connection id for clientID, if any.
func (r *Registry) ConnectionID(clientID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionID, ok := r.clients[clientID]
	return connectionID, ok
}

// Contains reports whether clientID has an open stream on this instance.
func (r *Registry) Contains(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[clientID]
	return ok
}

// Count returns the number of open streams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.streams)
}

// ClientIDs returns a snapshot of the client ids with open streams.
func (r *Registry) ClientIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Clear removes every mapping and completes all streams. Used on shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, stream := range r.streams {
		streams = append(streams, stream)
	}
	r.clients = make(map[string]string)
	r.streams = make(map[string]*Stream)
	r.mu.Unlock()

	for _, stream := range streams {
		stream.Complete()
	}
}
