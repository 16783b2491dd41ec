package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures the Redis channel.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string        // pub/sub channel signals are published on
	Prefix   string        // key prefix for the last-signal keys
	TTL      time.Duration // lifetime of the last-signal keys
}

// RedisChannel publishes signals as JSON on a pub/sub channel and keeps the most
// recent signal per symbol and timeframe under an expiring key.
type RedisChannel struct {
	client  *redis.Client
	channel string
	prefix  string
	ttl     time.Duration
}

// NewRedisChannel creates a Redis channel. The connection is established lazily.
func NewRedisChannel(opts RedisOptions) *RedisChannel {
	return NewRedisChannelWithClient(redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   2,
	}), opts)
}

// NewRedisChannelWithClient creates a Redis channel with an existing client.
func NewRedisChannelWithClient(client *redis.Client, opts RedisOptions) *RedisChannel {
	if opts.Channel == "" {
		opts.Channel = "flagscan:signals"
	}
	if opts.Prefix == "" {
		opts.Prefix = "flagscan:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &RedisChannel{
		client:  client,
		channel: opts.Channel,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
	}
}

func (rc *RedisChannel) Name() string { return "redis" }

func (rc *RedisChannel) IsEnabled() bool { return rc.client != nil }

// LastKey is the key holding the latest signal for a series.
func (rc *RedisChannel) LastKey(symbol, timeframe string) string {
	return fmt.Sprintf("%slast:%s:%s", rc.prefix, symbol, timeframe)
}

// Publish publishes the signal and records it as the latest for its series.
func (rc *RedisChannel) Publish(ctx context.Context, s Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := rc.client.TxPipeline()
	pipe.Publish(ctx, rc.channel, data)
	pipe.Set(ctx, rc.LastKey(s.Symbol, s.Pattern.Timeframe), data, rc.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Last returns the latest signal for a series, or nil if none is live.
func (rc *RedisChannel) Last(ctx context.Context, symbol, timeframe string) (*Signal, error) {
	data, err := rc.client.Get(ctx, rc.LastKey(symbol, timeframe)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Signal
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Subscribe streams signals published on the channel until ctx is done.
func (rc *RedisChannel) Subscribe(ctx context.Context) (<-chan Signal, error) {
	sub := rc.client.Subscribe(ctx, rc.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan Signal)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var s Signal
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks the connection.
func (rc *RedisChannel) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the client.
func (rc *RedisChannel) Close() error {
	return rc.client.Close()
}
