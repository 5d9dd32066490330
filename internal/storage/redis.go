package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "docassistant"

// RedisOptions configures the Redis-backed collection.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCollection stores records in a Redis hash and keeps insertion order in a sorted set.
type RedisCollection struct {
	client *redis.Client
	name   string
	keys   redisKeys
}

type redisKeys struct {
	records string
	order   string
	seq     string
}

func newRedisKeys(prefix, name string) redisKeys {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	base := prefix + ":" + name
	return redisKeys{
		records: base + ":records",
		order:   base + ":order",
		seq:     base + ":seq",
	}
}

// OpenRedis connects to Redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, opts RedisOptions, name string) (*RedisCollection, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return NewRedisCollection(client, opts.KeyPrefix, name), nil
}

// NewRedisCollection wraps an existing client.
func NewRedisCollection(client *redis.Client, keyPrefix, name string) *RedisCollection {
	if name == "" {
		name = DefaultCollectionName
	}
	return &RedisCollection{
		client: client,
		name:   name,
		keys:   newRedisKeys(keyPrefix, name),
	}
}

// Name returns the collection name.
func (c *RedisCollection) Name() string {
	return c.name
}

// Add stores records atomically. Existing ids keep their original position.
func (c *RedisCollection) Add(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	payloads := make([]string, len(records))
	for i, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		payloads[i] = string(data)
	}

	last, err := c.client.IncrBy(ctx, c.keys.seq, int64(len(records))).Result()
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}
	first := last - int64(len(records)) + 1

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, rec := range records {
			pipe.HSet(ctx, c.keys.records, rec.ID, payloads[i])
			pipe.ZAddNX(ctx, c.keys.order, redis.Z{Score: float64(first + int64(i)), Member: rec.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	return nil
}

// Get returns every record in insertion order.
func (c *RedisCollection) Get(ctx context.Context) (GetResult, error) {
	records, err := c.all(ctx)
	if err != nil {
		return GetResult{}, err
	}
	res := newGetResult(len(records))
	for _, rec := range records {
		res.append(rec)
	}
	return res, nil
}

// Query loads the collection and ranks it locally.
func (c *RedisCollection) Query(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	records, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	return rank(embedding, records, limit)
}

// Count returns the number of stored records.
func (c *RedisCollection) Count(ctx context.Context) (int, error) {
	n, err := c.client.ZCard(ctx, c.keys.order).Result()
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return int(n), nil
}

// Reset deletes every key owned by the collection.
func (c *RedisCollection) Reset(ctx context.Context) error {
	if err := c.client.Del(ctx, c.keys.records, c.keys.order, c.keys.seq).Err(); err != nil {
		return fmt.Errorf("reset collection: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCollection) Close() error {
	return c.client.Close()
}

func (c *RedisCollection) all(ctx context.Context) ([]Record, error) {
	ids, err := c.client.ZRange(ctx, c.keys.order, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := c.client.HMGet(ctx, c.keys.records, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	records := make([]Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// order entry without a payload; skip it
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", ids[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}
