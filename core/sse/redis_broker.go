package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ssekit/ssekit/core/logger"
)

const (
	clientKeyPrefix  = "sse:client:"
	channelPrefix    = "sse:channel:"
	broadcastChannel = "sse:broadcast"

	// messageSeparator joins the client id and the payload on the wire as
	// clientID + "::" + message. Client ids containing the separator are
	// rejected at the manager boundary, so the id is always unambiguously
	// recoverable by splitting at the first occurrence. The convention is
	// shared by every deployment using the distributed broker.
	messageSeparator = "::"
)

// DefaultDirectoryTTL is how long a client directory entry lives without a
// refresh. Entries left behind by a crashed instance expire on their own.
const DefaultDirectoryTTL = time.Hour

// RedisBroker is the MessageBroker for horizontally scaled deployments. The
// client directory lives in Redis keys with a TTL, per-client messages
// travel over a per-instance pub/sub channel, and broadcasts over one
// well-known channel shared by all instances.
//
// Backend failures degrade delivery, not caller control flow: lookups report
// absence, publishes return an error the manager logs, and only Available
// surfaces the outage directly.
type RedisBroker struct {
	client redis.UniversalClient
	log    *slog.Logger
	ttl    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.RWMutex
	onMessage    MessageHandler
	onBroadcast  BroadcastHandler
	instanceSub  *redis.PubSub
	broadcastSub *redis.PubSub
	closed       bool
}

// RedisBrokerOption configures a RedisBroker.
type RedisBrokerOption func(*RedisBroker)

// WithDirectoryTTL overrides the directory entry lifetime.
func WithDirectoryTTL(ttl time.Duration) RedisBrokerOption {
	return func(b *RedisBroker) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithRedisBrokerLogger configures structured logging for the broker.
func WithRedisBrokerLogger(log *slog.Logger) RedisBrokerOption {
	return func(b *RedisBroker) {
		if log != nil {
			b.log = log
		}
	}
}

// NewRedisBroker creates a broker on top of an established Redis client.
// The broker does not own the client; closing the broker leaves it open.
func NewRedisBroker(client redis.UniversalClient, opts ...RedisBrokerOption) *RedisBroker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBroker{
		client: client,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		ttl:    DefaultDirectoryTTL,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterClient writes the directory entry for clientID with the configured
// TTL, overwriting any previous owner.
func (b *RedisBroker) RegisterClient(ctx context.Context, clientID, instanceID string) error {
	if err := b.client.Set(ctx, clientKeyPrefix+clientID, instanceID, b.ttl).Err(); err != nil {
		b.log.Error("failed to register client", logger.Error(err), logger.ClientID(clientID))
		return fmt.Errorf("failed to register client: %w", err)
	}
	b.log.Debug("registered client", logger.ClientID(clientID), logger.InstanceID(instanceID))
	return nil
}

// UnregisterClient deletes the directory entry for clientID.
func (b *RedisBroker) UnregisterClient(ctx context.Context, clientID string) error {
	if err := b.client.Del(ctx, clientKeyPrefix+clientID).Err(); err != nil {
		b.log.Error("failed to unregister client", logger.Error(err), logger.ClientID(clientID))
		return fmt.Errorf("failed to unregister client: %w", err)
	}
	b.log.Debug("unregistered client", logger.ClientID(clientID))
	return nil
}

// ClientInstance looks up the owning instance for clientID. It reports false
// both for unknown clients and when the backend is unreachable.
func (b *RedisBroker) ClientInstance(ctx context.Context, clientID string) (string, bool) {
	instanceID, err := b.client.Get(ctx, clientKeyPrefix+clientID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.log.Warn("client directory lookup failed", logger.Error(err), logger.ClientID(clientID))
		}
		return "", false
	}
	return instanceID, true
}

// RefreshClient re-arms the TTL on the directory entry for clientID. A
// missing entry is a no-op: the client may have disconnected meanwhile.
func (b *RedisBroker) RefreshClient(ctx context.Context, clientID string) error {
	if err := b.client.Expire(ctx, clientKeyPrefix+clientID, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh client registration: %w", err)
	}
	return nil
}

// PublishToClient resolves the owning instance for clientID and publishes
// the message on that instance's channel. Unknown clients are dropped.
func (b *RedisBroker) PublishToClient(ctx context.Context, clientID, message string) error {
	targetInstance, ok := b.ClientInstance(ctx, clientID)
	if !ok {
		b.log.Debug("dropping message for unknown client", logger.ClientID(clientID))
		return nil
	}

	channel := channelPrefix + targetInstance
	payload := clientID + messageSeparator + message
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		b.log.Error("failed to publish to client", logger.Error(err), logger.ClientID(clientID), logger.Channel(channel))
		return fmt.Errorf("failed to publish to client: %w", err)
	}
	b.log.Debug("published message to client", logger.ClientID(clientID), logger.Channel(channel))
	return nil
}

// PublishBroadcast publishes the message on the shared broadcast channel.
func (b *RedisBroker) PublishBroadcast(ctx context.Context, message string) error {
	if err := b.client.Publish(ctx, broadcastChannel, message).Err(); err != nil {
		b.log.Error("failed to publish broadcast", logger.Error(err))
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}
	return nil
}

// Subscribe installs the handler for this instance's channel. The first call
// opens the Redis subscription and starts the receive loop; later calls only
// replace the handler.
func (b *RedisBroker) Subscribe(instanceID string, handler MessageHandler) {
	b.mu.Lock()
	b.onMessage = handler
	if b.instanceSub != nil || b.closed {
		b.mu.Unlock()
		return
	}
	channel := channelPrefix + instanceID
	sub := b.client.Subscribe(b.ctx, channel)
	b.instanceSub = sub
	b.mu.Unlock()

	// Wait for the subscription confirmation so no message published after
	// this call returns can be missed.
	if _, err := sub.Receive(b.ctx); err != nil {
		b.log.Error("failed to confirm channel subscription", logger.Error(err), logger.Channel(channel))
	}

	b.wg.Add(1)
	go b.listen(sub, b.dispatchClientMessage)
	b.log.Info("subscribed to instance channel", logger.Channel(channel), logger.InstanceID(instanceID))
}

// SubscribeBroadcast installs the handler for the shared broadcast channel,
// with the same replace-only semantics as Subscribe.
func (b *RedisBroker) SubscribeBroadcast(handler BroadcastHandler) {
	b.mu.Lock()
	b.onBroadcast = handler
	if b.broadcastSub != nil || b.closed {
		b.mu.Unlock()
		return
	}
	sub := b.client.Subscribe(b.ctx, broadcastChannel)
	b.broadcastSub = sub
	b.mu.Unlock()

	if _, err := sub.Receive(b.ctx); err != nil {
		b.log.Error("failed to confirm broadcast subscription", logger.Error(err))
	}

	b.wg.Add(1)
	go b.listen(sub, b.dispatchBroadcast)
	b.log.Info("subscribed to broadcast channel", logger.Channel(broadcastChannel))
}

// Available performs a ping round trip and reports false on any failure.
func (b *RedisBroker) Available(ctx context.Context) bool {
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.log.Warn("redis backend is not available", logger.Error(err))
		return false
	}
	return true
}

// Close stops the receive loops and closes the subscriptions. The underlying
// Redis client stays open for its owner to close.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	instanceSub, broadcastSub := b.instanceSub, b.broadcastSub
	b.mu.Unlock()

	b.cancel()
	if instanceSub != nil {
		_ = instanceSub.Close()
	}
	if broadcastSub != nil {
		_ = broadcastSub.Close()
	}
	b.wg.Wait()
	return nil
}

func (b *RedisBroker) listen(sub *redis.PubSub, dispatch func(payload string)) {
	defer b.wg.Done()

	ch := sub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			dispatch(msg.Payload)
		}
	}
}

func (b *RedisBroker) dispatchClientMessage(payload string) {
	idx := strings.Index(payload, messageSeparator)
	if idx <= 0 {
		b.log.Warn("dropping malformed cross-instance payload")
		return
	}
	clientID := payload[:idx]
	message := payload[idx+len(messageSeparator):]

	b.mu.RLock()
	handler := b.onMessage
	b.mu.RUnlock()

	if handler != nil {
		handler(clientID, message)
	}
}

func (b *RedisBroker) dispatchBroadcast(payload string) {
	b.mu.RLock()
	handler := b.onBroadcast
	b.mu.RUnlock()

	if handler != nil {
		handler(payload)
	}
}
