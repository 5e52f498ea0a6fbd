package offlinequeue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"eeia/internal/domain"
)

const (
	redisSeqKey     = "eeia:offline:seq"
	redisIndexKey   = "eeia:offline:index"
	redisEntriesKey = "eeia:offline:entries"
)

// RedisStore keeps ids in a sorted set (score = id) and records in a hash.
// The sequence counter is a plain INCR key that Clear does not touch.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed queue.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Enqueue(ctx context.Context, pkt domain.Packet) (int64, error) {
	raw, err := encodeRecord(pkt)
	if err != nil {
		return 0, err
	}
	id, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate offline id: %w", err)
	}
	field := strconv.FormatInt(id, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisEntriesKey, field, raw)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(id), Member: field})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue packet: %w", err)
	}
	return id, nil
}

func (s *RedisStore) DequeueBatch(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	fields, err := s.client.ZRange(ctx, redisIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", err)
	}
	if len(fields) == 0 {
		return []Entry{}, nil
	}
	values, err := s.client.HMGet(ctx, redisEntriesKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("load offline packets: %w", err)
	}

	entries := make([]Entry, 0, len(fields))
	for i, field := range fields {
		raw, ok := values[i].(string)
		if !ok {
			// Deleted between ZRANGE and HMGET.
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offline index member %q: %w", field, err)
		}
		pkt, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("offline packet %d: %w", id, err)
		}
		entries = append(entries, Entry{ID: id, Packet: pkt})
	}
	return entries, nil
}

func (s *RedisStore) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	fields := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		f := strconv.FormatInt(id, 10)
		fields = append(fields, f)
		members = append(members, f)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, redisIndexKey, members...)
		pipe.HDel(ctx, redisEntriesKey, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete offline packets: %w", err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, redisIndexKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count offline packets: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, redisIndexKey, redisEntriesKey).Err(); err != nil {
		return fmt.Errorf("clear offline packets: %w", err)
	}
	return nil
}
