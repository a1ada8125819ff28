package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
)

// RedisHandle stores one entity type as a Redis hash of JSON documents keyed
// by id. Sequence ids come from an INCR counter next to the hash. Matching
// loads the whole hash and filters in memory.
type RedisHandle struct {
	client *redis.Client
	desc   *metadata.Descriptor
	key    string
}

func NewRedisHandle(client *redis.Client, prefix string, desc *metadata.Descriptor) *RedisHandle {
	key := desc.EntityType
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisHandle{client: client, desc: desc, key: key}
}

func (h *RedisHandle) EntityType() string { return h.desc.EntityType }

func (h *RedisHandle) FindByID(ctx context.Context, id any) (any, bool, error) {
	data, err := h.client.HGet(ctx, h.key, idKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget %s: %w", h.key, err)
	}
	e, err := decodeDocument(h.desc, data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (h *RedisHandle) Save(ctx context.Context, entity any) (any, error) {
	id := h.desc.ID(entity)
	if emptyID(id) {
		generated, ok := newID(h.desc.IDStrategy)
		if !ok {
			n, err := h.client.Incr(ctx, h.key+":seq").Result()
			if err != nil {
				return nil, fmt.Errorf("redis incr %s: %w", h.key, err)
			}
			generated = n
		}
		if err := h.desc.SetID(entity, generated); err != nil {
			return nil, err
		}
		id = generated
	}
	data, err := encodeDocument(h.desc, entity)
	if err != nil {
		return nil, err
	}
	if err := h.client.HSet(ctx, h.key, idKey(id), data).Err(); err != nil {
		return nil, fmt.Errorf("redis hset %s: %w", h.key, err)
	}
	return entity, nil
}

func (h *RedisHandle) DeleteByID(ctx context.Context, id any) error {
	if err := h.client.HDel(ctx, h.key, idKey(id)).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", h.key, err)
	}
	return nil
}

func (h *RedisHandle) FindMatching(ctx context.Context, pred query.Expr, orders []query.OrderSpec, page *query.PageRequest) (*Page, error) {
	all, err := h.client.HGetAll(ctx, h.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", h.key, err)
	}
	// Hash order is unspecified; sort by key for a stable base order.
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]any, 0, len(keys))
	for _, k := range keys {
		e, err := decodeDocument(h.desc, []byte(all[k]))
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	content, total, err := query.Match(items, pred, orders, page)
	if err != nil {
		return nil, err
	}
	return &Page{Content: content, TotalElements: total}, nil
}
