package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultRedisKeyPrefix = "listapp"
	maxTxAttempts         = 5
)

// KEYS[1] item key, KEYS[2] index set; ARGV[1] document, ARGV[2] id.
var addItemScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`)

// KEYS[1] item key, KEYS[2] index set; ARGV[1] id. Returns the removed
// document, or nil when the key did not exist.
var deleteItemScript = redis.NewScript(`
local doc = redis.call("GET", KEYS[1])
if not doc then
	return false
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return doc
`)

// RedisStore provides item persistence in Redis. Every item is a JSON
// document under "<prefix>:item:<id>"; the set "<prefix>:items" indexes ids.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) itemKey(id string) string {
	return fmt.Sprintf("%s:item:%s", s.prefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":items"
}

// GetAll returns all items in the store.
func (s *RedisStore) GetAll(ctx context.Context) ([]ListItem, error) {
	ids, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ListItem{}, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.itemKey(id.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	items := make([]ListItem, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if err == redis.Nil {
				// removed between SMEMBERS and GET
				continue
			}
			return nil, err
		}
		var item ListItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

// Get retrieves an item by ID.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (ListItem, bool, error) {
	item, err := s.load(s.client.Get(ctx, s.itemKey(id.String())).Result())
	if errors.Is(err, ErrNotFound) {
		return ListItem{}, false, nil
	}
	if err != nil {
		return ListItem{}, false, err
	}
	return item, true, nil
}

// Add stores a new item, refusing to overwrite an existing one. The item
// key and its index entry are written by one script.
func (s *RedisStore) Add(ctx context.Context, item ListItem) (ListItem, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return ListItem{}, err
	}
	added, err := addItemScript.Run(ctx, s.client,
		[]string{s.itemKey(item.ID.String()), s.indexKey()},
		data, item.ID.String(),
	).Int()
	if err != nil {
		return ListItem{}, fmt.Errorf("add item: %w", err)
	}
	if added == 0 {
		return ListItem{}, ErrDuplicateKey
	}
	return item, nil
}

// Delete removes an item by ID together with its index entry and returns it.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) (ListItem, bool, error) {
	item, err := s.load(deleteItemScript.Run(ctx, s.client,
		[]string{s.itemKey(id.String()), s.indexKey()},
		id.String(),
	).Text())
	if errors.Is(err, ErrNotFound) {
		return ListItem{}, false, nil
	}
	if err != nil {
		return ListItem{}, false, fmt.Errorf("delete item: %w", err)
	}
	return item, true, nil
}

// Replace overwrites an existing item; nothing is written when the id is unknown.
func (s *RedisStore) Replace(ctx context.Context, item ListItem) (ListItem, bool, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return ListItem{}, false, err
	}
	ok, err := s.client.SetXX(ctx, s.itemKey(item.ID.String()), data, 0).Result()
	if err != nil {
		return ListItem{}, false, fmt.Errorf("replace item: %w", err)
	}
	if !ok {
		return ListItem{}, false, nil
	}
	return item, true, nil
}

// Keys returns the ids held in the index set.
func (s *RedisStore) Keys(ctx context.Context) ([]uuid.UUID, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt index entry %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReplaceAll drops every indexed item and writes items in one transaction.
// The index is watched so a concurrent Add or Delete forces a retry.
func (s *RedisStore) ReplaceAll(ctx context.Context, items []ListItem) error {
	payloads := make([][]byte, len(items))
	for i, item := range items {
		var err error
		if payloads[i], err = json.Marshal(item); err != nil {
			return err
		}
	}
	txf := func(tx *redis.Tx) error {
		members, err := tx.SMembers(ctx, s.indexKey()).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range members {
				pipe.Del(ctx, s.itemKey(id))
			}
			pipe.Del(ctx, s.indexKey())
			for i, item := range items {
				pipe.Set(ctx, s.itemKey(item.ID.String()), payloads[i], 0)
				pipe.SAdd(ctx, s.indexKey(), item.ID.String())
			}
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.indexKey())
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("replace all items: %w", err)
		}
		return nil
	}
	return fmt.Errorf("replace all items: index kept changing after %d attempts", maxTxAttempts)
}

// Ping checks the connection to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// load decodes a stored document, mapping a missing key to ErrNotFound.
func (s *RedisStore) load(data string, err error) (ListItem, error) {
	if err != nil {
		if err == redis.Nil {
			return ListItem{}, ErrNotFound
		}
		return ListItem{}, err
	}
	var item ListItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return ListItem{}, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}
