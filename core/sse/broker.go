package sse

import "context"

// MessageHandler receives a message routed to a single client owned by this
// instance.
type MessageHandler func(clientID, message string)

// BroadcastHandler receives a message addressed to every connected client.
type BroadcastHandler func(message string)

// MessageBroker locates clients across instances and routes messages to the
// instance that owns their stream. Two implementations exist: LocalBroker
// for single-instance deployments and RedisBroker for horizontally scaled
// ones. The Manager is written against this interface and behaves
// identically with either.
//
// A missing client is never an error: lookups report absence through their
// boolean result and publishes to unknown clients are silently dropped.
// Returned errors indicate backend failures only.
type MessageBroker interface {
	// RegisterClient records clientID as owned by instanceID, overwriting
	// any previous owner. Registering an already registered client is not
	// an error.
	RegisterClient(ctx context.Context, clientID, instanceID string) error

	// UnregisterClient removes the directory entry for clientID. Removing
	// an absent entry is a no-op.
	UnregisterClient(ctx context.Context, clientID string) error

	// ClientInstance reports which instance currently owns clientID. The
	// second result is false when the client is not known to be connected
	// anywhere, including when the backend is unreachable.
	ClientInstance(ctx context.Context, clientID string) (string, bool)

	// PublishToClient routes message to whichever instance owns clientID.
	// The message is dropped, not queued, when the client is unknown.
	// Delivery is fire-and-forget: a nil error means routed, not received.
	PublishToClient(ctx context.Context, clientID, message string) error

	// PublishBroadcast delivers message to every subscribed instance,
	// including the caller's own.
	PublishBroadcast(ctx context.Context, message string) error

	// Subscribe installs the handler invoked for messages addressed to
	// instanceID. Exactly one handler is active at a time; a later call
	// replaces the previous handler.
	Subscribe(instanceID string, handler MessageHandler)

	// SubscribeBroadcast installs the handler for broadcast messages, with
	// the same one-active-handler rule as Subscribe.
	SubscribeBroadcast(handler BroadcastHandler)

	// Available reports whether the broker's backend is reachable. It
	// returns false rather than failing when the backend is down.
	Available(ctx context.Context) bool

	// Close releases broker resources. The broker must not be used after.
	Close() error
}

// ClientRefresher is an optional broker capability for backends whose
// directory entries carry a TTL. The Manager re-arms registrations for its
// local clients periodically when the configured broker implements it, so an
// entry cannot silently expire under a long-lived stream.
type ClientRefresher interface {
	RefreshClient(ctx context.Context, clientID string) error
}
