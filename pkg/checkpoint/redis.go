package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meltflow/meltflow/pkg/errors"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all snapshot keys
	Prefix string

	// TTL is the time-to-live for snapshot keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address, password string, database int) RedisConfig {
	return RedisConfig{
		Address:  address,
		Password: password,
		Database: database,
		Prefix:   "meltflow:checkpoints:",
		TTL:      24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisBackend stores snapshots in Redis for low-latency access. Useful
// when many short runs share one checkpoint store.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeBackendConnect, "cannot connect to Redis").
			WithContext("address", cfg.Address)
	}

	return &RedisBackend{cfg: cfg, client: client}, nil
}

func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

func (b *RedisBackend) indexKey() string {
	return b.cfg.Prefix + "index"
}

// Save persists a snapshot and registers it in the ID index.
func (b *RedisBackend) Save(ctx context.Context, snap *Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot marshal snapshot")
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.key(snap.ID), data, b.cfg.TTL)
	pipe.SAdd(ctx, b.indexKey(), snap.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot save snapshot to Redis").
			WithContext("id", snap.ID)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.New(errors.CodeCheckpointLoad, "snapshot not found").
				WithContext("id", id)
		}
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot load snapshot from Redis").
			WithContext("id", id)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot unmarshal snapshot").
			WithContext("id", id)
	}
	return &snap, nil
}

// Delete removes a snapshot and its index entry.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.Pipeline()
	pipe.Del(ctx, b.key(id))
	pipe.SRem(ctx, b.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot delete snapshot from Redis").
			WithContext("id", id)
	}
	return nil
}

// List returns the registered snapshot IDs.
func (b *RedisBackend) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ids, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot list snapshots in Redis")
	}
	return ids, nil
}

// Close releases the Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
