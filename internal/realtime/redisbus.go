// Package realtime mirrors live subscription Add/Remove envelopes onto
// an optional Redis pub/sub backplane. The engine's own subscriber
// delivery (a buffered channel per subscriber) is always
// in-process and needs no backplane; this exists only so a separate
// HTTP-ingress process (one that doesn't hold the engine itself) can
// still fan a websocket client's subscription out across process
// boundaries. When unconfigured, Bus is nil and every apiserver call
// site treats that as "no mirroring" rather than an error.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Bus wraps a redis client for best-effort fan-out of subscription
// envelopes. A publish failure is logged and otherwise ignored: the
// in-process channel a local websocket client reads from already has
// the update, so Redis is a convenience mirror, not the source of
// truth.
type Bus struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewBus dials addr (host:port) and returns a Bus publishing under
// channels prefixed with prefix (e.g. "tracehub:sub:"). Dialing is
// lazy: go-redis only opens a connection on first command, so this
// never blocks or fails on a misconfigured/unreachable address until
// something is actually published.
func NewBus(addr, prefix string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		logger: logger,
	}
}

// channel returns the redis pub/sub channel name for a subscription id.
func (b *Bus) channel(subID string) string {
	return fmt.Sprintf("%s%s", b.prefix, subID)
}

// Publish mirrors one subscription envelope. Errors are logged at warn
// and swallowed; see the package doc for why this is safe to ignore.
func (b *Bus) Publish(ctx context.Context, subID string, envelope any) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		b.logger.Warn("realtime: failed to marshal envelope", "subscription_id", subID, "error", err)
		return
	}
	if err := b.client.Publish(ctx, b.channel(subID), payload).Err(); err != nil {
		b.logger.Warn("realtime: redis publish failed", "subscription_id", subID, "error", err)
	}
}

// Subscribe returns a redis pub/sub handle for subID; callers drain its
// Channel() and forward payloads to their own transport. Used by a
// second apiserver process that wants to observe a subscription id
// minted by the process actually holding the engine.
func (b *Bus) Subscribe(ctx context.Context, subID string) *redis.PubSub {
	return b.client.Subscribe(ctx, b.channel(subID))
}

// Close releases the underlying redis connection pool.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.client.Close()
}
