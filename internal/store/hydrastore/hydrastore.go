// Package hydrastore keeps offers in a HydrAIDE catalog swamp. Each offer is
// one treasure keyed by its id, with the encoded offer as a binary value.
package hydrastore

import (
	"context"
	"fmt"
	"time"

	"github.com/hydraide/hydraide/sdk/go/hydraidego"
	"github.com/hydraide/hydraide/sdk/go/hydraidego/client"
	"github.com/hydraide/hydraide/sdk/go/hydraidego/name"
	"github.com/hydraide/hydraide/sdk/go/hydraidego/utils/hydraidehelper"
	"github.com/hydraide/hydraide/sdk/go/hydraidego/utils/repo"

	"offer-api/internal/store"
)

const (
	realm    = "catalog"
	swampAll = "all"
)

// catalog is the part of the HydrAIDE SDK the store uses.
type catalog interface {
	Heartbeat(ctx context.Context) error
	RegisterSwamp(ctx context.Context, request *hydraidego.RegisterSwampRequest) []error
	CatalogRead(ctx context.Context, swampName name.Name, key string, model any) error
	CatalogSave(ctx context.Context, swampName name.Name, model any) (hydraidego.EventStatus, error)
	CatalogDelete(ctx context.Context, swampName name.Name, key string) error
	CatalogReadMany(ctx context.Context, swampName name.Name, index *hydraidego.Index, model any, iterator hydraidego.CatalogReadManyIteratorFunc) error
	Count(ctx context.Context, swampName name.Name) (int32, error)
}

// treasure is one stored offer.
type treasure struct {
	Key       string    `hydraide:"key"`
	Body      []byte    `hydraide:"value"`
	CreatedAt time.Time `hydraide:"createdAt"`
	UpdatedAt time.Time `hydraide:"updatedAt"`
}

type Store struct {
	h        catalog
	swamp    name.Name
	notFound func(error) bool
}

var _ store.Store = (*Store)(nil)

// Config describes a single HydrAIDE server covering every island.
type Config struct {
	Host         string
	CertFilePath string
	Namespace    string
}

// New connects to HydrAIDE and registers the namespace swamp.
func New(ctx context.Context, cfg Config) (*Store, error) {
	servers := []*client.Server{
		{
			Host:         cfg.Host,
			FromIsland:   1,
			ToIsland:     1000,
			CertFilePath: cfg.CertFilePath,
		},
	}
	r := repo.New(servers, 1000, 10485760, false)

	return newStore(ctx, r.GetHydraidego(), cfg.Namespace)
}

func newStore(ctx context.Context, h catalog, namespace string) (*Store, error) {
	s := &Store{
		h:     h,
		swamp: name.New().Sanctuary(namespace).Realm(realm).Swamp(swampAll),
		notFound: func(err error) bool {
			return hydraidego.IsSwampNotFound(err) || hydraidego.IsNotFound(err)
		},
	}

	if err := h.Heartbeat(ctx); err != nil {
		return nil, fmt.Errorf("%w: hydraide heartbeat: %w", store.ErrUnavailable, err)
	}

	if errs := h.RegisterSwamp(ctx, &hydraidego.RegisterSwampRequest{
		SwampPattern:    s.swamp,
		CloseAfterIdle:  time.Hour,
		IsInMemorySwamp: false,
		FilesystemSettings: &hydraidego.SwampFilesystemSettings{
			WriteInterval: time.Second,
			MaxFileSize:   65536,
		},
	}); errs != nil {
		return nil, fmt.Errorf("failed to register swamp: %w", hydraidehelper.ConcatErrors(errs))
	}

	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var t treasure
	if err := s.h.CatalogRead(ctx, s.swamp, key, &t); err != nil {
		if s.notFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("hydraide get: %w", err)
	}
	return t.Body, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC()
	t := &treasure{Key: key, Body: value, CreatedAt: now, UpdatedAt: now}

	var existing treasure
	if err := s.h.CatalogRead(ctx, s.swamp, key, &existing); err == nil && !existing.CreatedAt.IsZero() {
		t.CreatedAt = existing.CreatedAt
	}

	if _, err := s.h.CatalogSave(ctx, s.swamp, t); err != nil {
		return fmt.Errorf("hydraide put: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.h.CatalogDelete(ctx, s.swamp, key); err != nil && !s.notFound(err) {
		return fmt.Errorf("hydraide delete: %w", err)
	}
	return nil
}

// Keys returns every key in creation order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	total, err := s.h.Count(ctx, s.swamp)
	if err != nil {
		if s.notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hydraide count: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	index := &hydraidego.Index{
		IndexType:  hydraidego.IndexCreationTime,
		IndexOrder: hydraidego.IndexOrderAsc,
		From:       0,
		Limit:      total,
	}

	keys := make([]string, 0, total)
	err = s.h.CatalogReadMany(ctx, s.swamp, index, treasure{}, func(model any) error {
		if t, ok := model.(*treasure); ok {
			keys = append(keys, t.Key)
		}
		return nil
	})
	if err != nil && !s.notFound(err) {
		return nil, fmt.Errorf("hydraide keys: %w", err)
	}
	return keys, nil
}

// Close is a no-op; the SDK manages its own connections.
func (s *Store) Close() error {
	return nil
}
