package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
)

// DefaultKeyPrefix namespaces the Redis keys.
const DefaultKeyPrefix = "landchain"

// Redis stores each snapshot as one JSON value. A single SET replaces the
// value atomically, so readers never see a partial snapshot.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis parses url, connects and pings the server.
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("storage: redis backend requires a url")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storage: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("storage: redis ping: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(name string) string { return r.prefix + ":" + name }

func (r *Redis) LoadLedger(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := r.get(ctx, "ledger", &snap)
	return snap, err
}

func (r *Redis) SaveLedger(ctx context.Context, snap ledger.Snapshot) error {
	return r.set(ctx, "ledger", snap)
}

func (r *Redis) LoadCertificates(ctx context.Context) (certificate.Snapshot, error) {
	var snap certificate.Snapshot
	err := r.get(ctx, "certificates", &snap)
	return snap, err
}

func (r *Redis) SaveCertificates(ctx context.Context, snap certificate.Snapshot) error {
	return r.set(ctx, "certificates", snap)
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) get(ctx context.Context, name string, v any) error {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: redis get %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", name, err)
	}
	return nil
}

func (r *Redis) set(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", name, err)
	}
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis set %s: %w", name, err)
	}
	return nil
}
