package redis_store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/searchrag/models"
)

const conversationKeyPrefix = "conversation:"

// Store keeps each conversation in a Redis list of JSON encoded turns.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConversationStore wraps client. A positive ttl expires idle
// conversations and is refreshed on every append.
func NewRedisConversationStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(id string) string { return conversationKeyPrefix + id }

func (s *Store) Append(ctx context.Context, id string, turns ...models.Turn) error {
	if id == "" {
		return models.ErrSessionRequired
	}
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key(id), values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key(id), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) ([]models.Turn, error) {
	if id == "" {
		return nil, models.ErrSessionRequired
	}
	vals, err := s.client.LRange(ctx, key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	turns := make([]models.Turn, 0, len(vals))
	for _, v := range vals {
		var t models.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn in %s: %w", id, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *Store) Clear(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrSessionRequired
	}
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("clear conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }
