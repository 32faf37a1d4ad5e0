package stream

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
)

// DefaultKey is the stream key the reference deployment uses.
const DefaultKey = "system-fingerprints"

// field under which the serialized vector is stored
const dataField = "data"

// Redis is a Stream backed by a Redis Stream key. Ids are
// Redis-assigned and monotonic per key.
type Redis struct {
	rdb *redis.Client
	key string
}

// NewRedis returns a Stream over the given key.
func NewRedis(rdb *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{rdb: rdb, key: key}
}

func (s *Redis) Append(ctx context.Context, vec []float64) (string, error) {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		Values: map[string]interface{}{dataField: fingerprint.Format(vec)},
	}).Result()
}

func (s *Redis) Read(ctx context.Context, cursor string, block time.Duration) (*Entry, string, error) {
	res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.key, cursor},
		Count:   1,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cursor, nil // timed out, cursor unchanged
		}
		return nil, cursor, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, cursor, nil
	}
	msg := res[0].Messages[0]
	data, _ := msg.Values[dataField].(string)
	return &Entry{ID: msg.ID, Data: data, At: entryTime(msg.ID)}, msg.ID, nil
}

// entryTime recovers the append timestamp from a Redis stream id
// (milliseconds-sequence form).
func entryTime(id string) time.Time {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}
