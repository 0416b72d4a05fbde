package events

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/genxsop/backend/pkg/redis"
)

// RedisPublisher sends envelopes with PUBLISH on a single channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, now: time.Now}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if !p.client.Enabled() {
		return nil
	}
	data, err := Encode(e, p.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	if err := p.client.Redis().Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", e.EventName(), err)
	}
	return nil
}
