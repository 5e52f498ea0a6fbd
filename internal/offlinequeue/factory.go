package offlinequeue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendJetStream = "jetstream"
)

// Deps carries the connections a backend may need. Only the one matching the
// selected backend has to be set.
type Deps struct {
	DB        *sql.DB
	Redis     *redis.Client
	JetStream jetstream.JetStream

	JetStreamOptions []JetStreamOption
}

// NewStore builds the backend named by backend. The Postgres backend creates
// its table on first use.
func NewStore(ctx context.Context, backend string, deps Deps) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("postgres queue backend requires a database")
		}
		store := NewPostgresStore(deps.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis queue backend requires a redis client")
		}
		return NewRedisStore(deps.Redis), nil
	case BackendJetStream:
		store, err := NewJetStreamStore(ctx, deps.JetStream, deps.JetStreamOptions...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}
