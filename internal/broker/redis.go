package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisChannelPrefix = "pairrooms:events:"

// RedisChannel is the pub/sub channel of a region
func RedisChannel(region string) string {
	return redisChannelPrefix + region
}

// Redis fans events out through Redis PUBLISH/SUBSCRIBE
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a broker on an existing client
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Publish sends payload on the channel of region
func (r *Redis) Publish(ctx context.Context, region string, payload []byte) error {
	if err := r.rdb.Publish(ctx, RedisChannel(region), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers messages for regions to handle until ctx is done
func (r *Redis) Subscribe(ctx context.Context, regions []string, handle Handler) error {
	channels := make([]string, 0, len(regions))
	for _, region := range regions {
		channels = append(channels, RedisChannel(region))
	}

	pubsub := r.rdb.Subscribe(ctx, channels...)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so nothing published after
	// Subscribe returns control is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	log.Info().Str("module", "broker").Strs("channels", channels).Msg("redis subscriber started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle(strings.TrimPrefix(msg.Channel, redisChannelPrefix), []byte(msg.Payload))
		}
	}
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *Redis) Close() error {
	return nil
}
