package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tapntrack/internal/model"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// RedisStore keeps one hash per collection, field = document id, value =
// JSON body. Iteration is in id order.
type RedisStore struct {
	rdb    *Redis
	prefix string
}

// NewRedisStore builds a RecordStore over rdb. Keys are "<prefix>:<collection>".
func NewRedisStore(rdb *Redis, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tapntrack"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(collection string) string {
	return s.prefix + ":" + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (model.Document, error) {
	raw, err := s.rdb.Client.HGet(ctx, s.key(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}

func (s *RedisStore) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	return s.QueryByField(ctx, collection, "", nil)
}

// QueryByField scans the collection hash; an empty field matches everything.
func (s *RedisStore) QueryByField(ctx context.Context, collection, field string, value any) ([]model.Document, error) {
	all, err := s.rdb.Client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := decodeBody([]byte(all[id]))
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, err)
		}
		if field != "" && !model.EqualScalar(doc[field], value) {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, doc model.Document) error {
	raw, err := json.Marshal(merge(nil, doc))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return s.rdb.Client.HSet(ctx, s.key(collection), id, raw).Err()
}

// UpdateFields merges under WATCH so a concurrent write aborts the commit.
func (s *RedisStore) UpdateFields(ctx context.Context, collection, id string, fields model.Document) error {
	key := s.key(collection)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := decodeBody(raw)
		if err != nil {
			return err
		}
		updated, err := json.Marshal(merge(doc, fields))
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, id, updated)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < 3; attempt++ {
		err := s.rdb.Client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update %s/%s: %w", collection, id, redis.TxFailedErr)
}

func (s *RedisStore) Remove(ctx context.Context, collection, id string) error {
	return s.rdb.Client.HDel(ctx, s.key(collection), id).Err()
}

// Take reads and deletes the field inside MULTI/EXEC.
func (s *RedisStore) Take(ctx context.Context, collection, id string) (model.Document, error) {
	key := s.key(collection)
	var get *redis.StringCmd
	var del *redis.IntCmd
	_, err := s.rdb.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGet(ctx, key, id)
		del = p.HDel(ctx, key, id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if del.Val() == 0 {
		return nil, ErrNotFound
	}
	raw, err := get.Bytes()
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}

// Close leaves the shared client open; its owner closes it.
func (s *RedisStore) Close() error { return nil }
