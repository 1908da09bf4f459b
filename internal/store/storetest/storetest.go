// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offer-api/internal/store"
)

// Run exercises the Store contract against the store returned by newStore.
// Every subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "a", []byte(`{"title":"Fancy"}`)))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"Fancy"}`, string(got))
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "a", []byte(`{"v":1}`)))
		require.NoError(t, s.Put(ctx, "a", []byte(`{"v":2}`)))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, keys)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "a", []byte(`{}`)))
		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "never-existed"))

		_, err := s.Get(ctx, "a")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("Keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, s.Put(ctx, k, []byte(`{}`)))
		}
		require.NoError(t, s.Delete(ctx, "a"))

		keys, err = s.Keys(ctx)
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"b", "c"}, keys)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%02d", i)
				assert.NoError(t, s.Put(ctx, key, []byte(fmt.Sprintf(`{"i":%d}`, i))))
				_, err := s.Get(ctx, key)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 20)
	})
}
