// Package publish mirrors each view to Redis: the latest view under a key, and
// every view on a pub/sub channel.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/strikewatch/internal/monitor"
)

// ErrNoView is returned by Latest when no view has been published.
var ErrNoView = errors.New("no view published")

// RedisPublisher writes views to Redis. An empty key or channel disables that half.
type RedisPublisher struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

func NewRedisPublisher(url, key, channel string, ttl time.Duration) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisPublisher{
		client:  redis.NewClient(opt),
		key:     key,
		channel: channel,
		ttl:     ttl,
	}, nil
}

// Ping checks connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish stores v as the latest view and announces it on the channel.
func (p *RedisPublisher) Publish(ctx context.Context, v monitor.View) error {
	payload, err := encodeView(v)
	if err != nil {
		return err
	}
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if p.key != "" {
			pipe.Set(ctx, p.key, payload, p.ttl)
		}
		if p.channel != "" {
			pipe.Publish(ctx, p.channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish view: %w", err)
	}
	return nil
}

// Latest returns the most recently stored view.
func (p *RedisPublisher) Latest(ctx context.Context) (monitor.View, error) {
	payload, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return monitor.View{}, ErrNoView
	}
	if err != nil {
		return monitor.View{}, fmt.Errorf("failed to read view: %w", err)
	}
	return decodeView(payload)
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func encodeView(v monitor.View) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view: %w", err)
	}
	return payload, nil
}

func decodeView(payload []byte) (monitor.View, error) {
	var v monitor.View
	if err := json.Unmarshal(payload, &v); err != nil {
		return monitor.View{}, fmt.Errorf("failed to decode view: %w", err)
	}
	return v, nil
}
