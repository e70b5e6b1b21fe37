package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each document as a JSON string plus an index set of
// identifiers.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) Name() string {
	return "redis"
}

func (b *RedisBackend) key(linkingID string) string {
	return b.prefix + ":record:" + linkingID
}

func (b *RedisBackend) indexKey() string {
	return b.prefix + ":ids"
}

func (b *RedisBackend) Insert(ctx context.Context, linkingID string, doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	// SAdd of an id already in the index is a no-op, so it runs unconditionally
	// in the same MULTI as the SetNX.
	var set *redis.BoolCmd
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetNX(ctx, b.key(linkingID), data, 0)
		pipe.SAdd(ctx, b.indexKey(), linkingID)
		return nil
	})
	if err != nil {
		return err
	}
	if !set.Val() {
		return ErrAlreadyExists
	}
	return nil
}

func (b *RedisBackend) Fetch(ctx context.Context, linkingID string) (map[string]interface{}, error) {
	raw, err := b.client.Get(ctx, b.key(linkingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeJSONDocument(raw)
}

// Patch is an optimistic WATCH/MULTI transaction on the record key. A
// concurrent writer makes it fail with redis.TxFailedErr; it is not retried.
func (b *RedisBackend) Patch(ctx context.Context, linkingID string, patch map[string]interface{}) (bool, error) {
	key := b.key(linkingID)
	updated := false

	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		doc, err := decodeJSONDocument(raw)
		if err != nil {
			return err
		}
		applyPatch(doc, patch)
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = true
		}
		return err
	}, key)

	return updated, err
}

func (b *RedisBackend) Remove(ctx context.Context, linkingID string) (bool, error) {
	var del *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, b.key(linkingID))
		pipe.SRem(ctx, b.indexKey(), linkingID)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

// Scan reads the index once, sorts it and fetches documents one at a time.
// Index entries whose document has gone are skipped.
func (b *RedisBackend) Scan(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		ids, err := b.client.SMembers(ctx, b.indexKey()).Result()
		if err != nil {
			yield(Document{}, err)
			return
		}
		sort.Strings(ids)

		for _, id := range ids {
			doc, err := b.Fetch(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(Document{ID: id, Fields: doc}, nil) {
				return
			}
		}
	}
}

func decodeJSONDocument(raw []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}
