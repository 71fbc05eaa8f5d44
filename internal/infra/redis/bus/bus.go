package infra_redis_bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ekuzmich/collabrun/internal/bus"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "room_events:"

// Driver carries bus.Bus over redis pub/sub. Every gateway instance
// subscribes to the channels of rooms it holds sockets for; publishes from
// any instance or worker reach all of them.
type Driver struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{client: client, logger: logger}
}

func (d *Driver) Publish(ctx context.Context, topic string, env bus.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := d.client.Publish(ctx, channelPrefix+topic, data).Err(); err != nil {
		d.logger.Error("bus publish failed", "topic", topic, "error", err)
		return bus.ErrBusUnavailable
	}
	return nil
}

func (d *Driver) Subscribe(ctx context.Context, topic string) (bus.Subscription, error) {
	pubsub := d.client.Subscribe(ctx, channelPrefix+topic)

	// Receive forces the SUBSCRIBE round trip so a dead transport surfaces
	// here instead of as silently dropped events later.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		d.logger.Error("bus subscribe failed", "topic", topic, "error", err)
		return nil, bus.ErrBusUnavailable
	}

	sub := &subscription{
		pubsub: pubsub,
		ch:     make(chan bus.Envelope, 64),
	}
	go sub.pump(d.logger, topic)
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	ch     chan bus.Envelope
	once   sync.Once
}

func (s *subscription) pump(logger *slog.Logger, topic string) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		env, err := bus.Unmarshal([]byte(msg.Payload))
		if err != nil {
			logger.Warn("dropping malformed bus message", "topic", topic, "error", err)
			continue
		}
		select {
		case s.ch <- env:
		default:
			logger.Warn("subscriber lagging, dropping event", "topic", topic, "type", env.Event.Type)
		}
	}
}

func (s *subscription) Events() <-chan bus.Envelope { return s.ch }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.pubsub.Close() })
	return err
}
