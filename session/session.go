package session

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/models"
	"github.com/mohammad-safakhou/searchrag/session/inmemory"
	"github.com/mohammad-safakhou/searchrag/session/postgres_store"
	"github.com/mohammad-safakhou/searchrag/session/redis_store"
)

// Store holds the ordered conversation of every session.
type Store interface {
	// Append adds turns to the end of a conversation as one unit.
	Append(ctx context.Context, id string, turns ...models.Turn) error
	// Get returns the conversation in insertion order; unknown sessions are empty.
	Get(ctx context.Context, id string) ([]models.Turn, error)
	Clear(ctx context.Context, id string) error
	Close() error
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
	PostgresStore StoreType = "postgres"
)

// NewStore connects the conversation store selected by cfg.Conversation.Store.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch StoreType(cfg.Conversation.Store) {
	case InMemoryStore, "":
		return inmemory.NewInMemoryConversationStore(), nil
	case RedisStore:
		r := cfg.Storage.Redis
		client, err := redis_store.Conn(ctx, r.Host, r.Port, r.Password, r.DB, r.Timeout)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return redis_store.NewRedisConversationStore(client, cfg.Conversation.SessionTTL), nil
	case PostgresStore:
		st, err := postgres_store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return st, nil
	default:
		return nil, &config.ConfigurationError{Key: "conversation.store", Msg: fmt.Sprintf("unsupported store type %q", cfg.Conversation.Store)}
	}
}
