package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix    = "missedcall:state:"
	maxTxRetries = 5
)

// RedisStore keeps conversations in Redis so several service instances can
// share them. Keys expire ttl after the last write.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (m *RedisStore) RedisClient() *redis.Client {
	return m.rdb
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (m *RedisStore) Get(ctx context.Context, callID string) (*ConversationState, error) {
	if callID == "" {
		return nil, ErrInvalidCallID
	}
	return m.load(ctx, m.rdb, keyPrefix+callID)
}

func (m *RedisStore) GetOrCreate(ctx context.Context, callID string) (*ConversationState, error) {
	return m.Update(ctx, callID, func(*ConversationState) error { return nil })
}

func (m *RedisStore) Update(ctx context.Context, callID string, fn UpdateFunc) (*ConversationState, error) {
	if callID == "" {
		return nil, ErrInvalidCallID
	}
	key := keyPrefix + callID

	var result *ConversationState
	txf := func(tx *redis.Tx) error {
		now := m.now()
		st, err := m.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if st == nil {
			st = newConversation(callID, now)
		}
		if err := fn(st); err != nil {
			return err
		}
		st.UpdatedAt = now

		val, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("state encode failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, m.ttl)
			return nil
		})
		if err == nil {
			result = st
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := m.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

func (m *RedisStore) load(ctx context.Context, g getter, key string) (*ConversationState, error) {
	val, err := g.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st ConversationState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("state decode failed for %s: %w", key, err)
	}
	return &st, nil
}
