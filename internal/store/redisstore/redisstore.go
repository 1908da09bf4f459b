// Package redisstore keeps offers as plain string values under a namespaced
// key prefix.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"offer-api/internal/store"
)

type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// New connects to Redis and pings it. Keys are stored as "<namespace>:<key>".
func New(ctx context.Context, addr, password string, db int, namespace string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %w", store.ErrUnavailable, err)
	}

	return NewWithClient(client, namespace), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, namespace string) *Store {
	return &Store{client: client, prefix: namespace + ":"}
}

func (r *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify("get", err)
	}
	return val, nil
}

func (r *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return classify("put", err)
	}
	return nil
}

func (r *Store) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return classify("delete", err)
	}
	return nil
}

// Keys walks the namespace with SCAN. The order is whatever Redis yields.
// SCAN may return a key more than once; each key is listed once.
func (r *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	seen := make(map[string]struct{})
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), r.prefix)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, classify("keys", err)
	}
	return keys, nil
}

func (r *Store) Close() error {
	return r.client.Close()
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: redis %s: %w", store.ErrUnavailable, op, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}
