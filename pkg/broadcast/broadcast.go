// Package broadcast fans newly committed operations out across multiple
// pkg/server processes sitting behind a load balancer, so a replica's
// WebSocket subscribers learn about writes accepted by a sibling process.
// This is the cross-replica fan-out spec.md §1 calls out as external to
// the core engine.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carrysync/carry/pkg/log"
	"github.com/carrysync/carry/pkg/metrics"
	"github.com/carrysync/carry/pkg/operation"
)

const defaultChannel = "carry:operations"

// Config describes how to reach the Redis instance used as the broadcast bus.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Broadcaster publishes/subscribes to accepted operations over Redis
// pub/sub.
type Broadcaster struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// New connects to Redis and returns a Broadcaster. The connection is
// checked with a Ping so callers fail fast on misconfiguration.
func New(ctx context.Context, cfg Config) (*Broadcaster, error) {
	channel := cfg.Channel
	if channel == "" {
		channel = defaultChannel
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Broadcaster{client: client, channel: channel, logger: log.WithComponent("broadcast")}, nil
}

// Publish announces an accepted operation to every other subscribed
// replica.
func (b *Broadcaster) Publish(ctx context.Context, op operation.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish operation: %w", err)
	}
	metrics.BroadcastMessagesTotal.WithLabelValues("publish").Inc()
	return nil
}

// Subscribe starts listening on the broadcast channel and invokes handler
// for every operation received until ctx is canceled. It runs in the
// caller's goroutine and returns when the subscription ends.
func (b *Broadcaster) Subscribe(ctx context.Context, handler func(operation.Operation)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var op operation.Operation
			if err := json.Unmarshal([]byte(msg.Payload), &op); err != nil {
				b.logger.Warn().Err(err).Msg("dropping malformed broadcast payload")
				continue
			}
			metrics.BroadcastMessagesTotal.WithLabelValues("receive").Inc()
			handler(op)
		}
	}
}

// Close releases the Redis client.
func (b *Broadcaster) Close() error {
	return b.client.Close()
}
