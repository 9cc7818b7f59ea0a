package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jo-hoe/medscan/internal/document"
)

const (
	redisKeyPrefix = "medscan:result:"
	redisIndexKey  = "medscan:results"
)

// RedisDatabase stores each result as a JSON string and keeps a sorted set
// of ids scored by creation time for ordering and retention.
type RedisDatabase struct {
	client *redis.Client
}

// NewRedisDatabase accepts either a redis:// URL or a plain host:port address
func NewRedisDatabase(connectionString string) (DatabaseService, error) {
	var options *redis.Options
	if strings.Contains(connectionString, "://") {
		parsed, err := redis.ParseURL(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid redis connection string: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: connectionString}
	}

	return &RedisDatabase{client: redis.NewClient(options)}, nil
}

func resultKey(id string) string {
	return redisKeyPrefix + id
}

// CreateDatabase only verifies connectivity; redis needs no schema
func (r *RedisDatabase) CreateDatabase(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

func (r *RedisDatabase) Close() error {
	return r.client.Close()
}

func (r *RedisDatabase) SaveResult(ctx context.Context, result *document.Result) (string, error) {
	data, err := prepareResult(result)
	if err != nil {
		return "", err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resultKey(result.ID), data, 0)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(result.CreatedAt.UnixNano()),
			Member: result.ID,
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store result %s: %w", result.ID, err)
	}
	return result.ID, nil
}

func (r *RedisDatabase) GetResult(ctx context.Context, id string) (*document.Result, error) {
	data, err := r.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

func (r *RedisDatabase) ListResults(ctx context.Context, limit int) ([]*document.Result, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.client.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*document.Result, 0, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = resultKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry without a record, skipped until retention removes it
			continue
		}
		result, err := decodeResult([]byte(raw))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *RedisDatabase) DeleteResult(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, resultKey(id))
		pipe.ZRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return err
	}
	if deleted.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisDatabase) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = resultKey(id)
		members[i] = id
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
