package alert

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel the reference deployment uses.
const DefaultChannel = "alerts"

// Redis publishes alerts on a Redis pub/sub channel.
type Redis struct {
	rdb     *redis.Client
	channel string
}

// NewRedis returns a Publisher for the given channel.
func NewRedis(rdb *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) Publish(ctx context.Context, a Alert) error {
	return r.rdb.Publish(ctx, r.channel, a.String()).Err()
}

// Listen subscribes to the channel and forwards message payloads
// until ctx is cancelled.
func (r *Redis) Listen(ctx context.Context) (<-chan string, error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		src := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
