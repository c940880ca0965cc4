package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"gigsocket/internal/app/dto"
	"gigsocket/internal/infra/obs"
)

const channelPrefix = "user:"

// Sink receives payloads for users connected to this process.
type Sink interface {
	Push(userID string, data []byte) bool
}

// Bridge relays deliveries between gateway processes over Redis pub/sub. It
// holds one publishing client and one subscription carrying every user
// channel this process has a connection for.
type Bridge struct {
	client  *goredis.Client
	pubsub  *goredis.PubSub
	sink    Sink
	metrics *obs.Metrics
	logger  *slog.Logger

	closeOnce sync.Once
}

func ChannelFor(userID string) string {
	return channelPrefix + userID
}

func userFromChannel(channel string) (string, bool) {
	userID, ok := strings.CutPrefix(channel, channelPrefix)
	return userID, ok && userID != ""
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewBridge(ctx context.Context, client *goredis.Client, sink Sink, metrics *obs.Metrics, logger *slog.Logger) *Bridge {
	if client == nil || sink == nil {
		panic("redis: client and sink are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client:  client,
		pubsub:  client.Subscribe(ctx),
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
}

func (b *Bridge) Subscribe(ctx context.Context, userID string) error {
	if err := b.pubsub.Subscribe(ctx, ChannelFor(userID)); err != nil {
		return fmt.Errorf("subscribe %s: %w", userID, err)
	}
	return nil
}

func (b *Bridge) Unsubscribe(ctx context.Context, userID string) error {
	if err := b.pubsub.Unsubscribe(ctx, ChannelFor(userID)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", userID, err)
	}
	return nil
}

// Deliver publishes msg on the user's channel. Whichever process holds the
// user's connection picks it up; nobody queues it otherwise.
func (b *Bridge) Deliver(ctx context.Context, userID string, msg dto.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		b.count(msg.Type, "encode_error")
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	if err := b.client.Publish(ctx, ChannelFor(userID), data).Err(); err != nil {
		b.count(msg.Type, "publish_error")
		return fmt.Errorf("publish to %s: %w", userID, err)
	}
	b.count(msg.Type, "published")
	return nil
}

// Run forwards subscribed messages to the sink until ctx is done or the
// subscription is closed.
func (b *Bridge) Run(ctx context.Context) error {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg)
		}
	}
}

func (b *Bridge) forward(msg *goredis.Message) {
	userID, ok := userFromChannel(msg.Channel)
	if !ok {
		b.logger.Debug("ignoring message on foreign channel", "channel", msg.Channel)
		return
	}
	if !b.sink.Push(userID, []byte(msg.Payload)) {
		b.logger.Debug("no local connection for delivery", "user_id", userID)
		if b.metrics != nil {
			b.metrics.DroppedDelivery.Inc()
		}
	}
}

// Ping reports whether Redis answers; used by the readiness probe.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close ends the subscription. The publishing client is owned by the caller.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.pubsub.Close()
	})
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}

func (b *Bridge) count(typ dto.MessageType, outcome string) {
	if b.metrics != nil {
		b.metrics.Deliveries.WithLabelValues(string(typ), outcome).Inc()
	}
}
