// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package statestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/clocktest"
	"github.com/alexweingart/nektus-sub006/statestore"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T, clock *clocktest.Manual) statestore.Store
}

var backends = []backend{
	{"memory", func(_ *testing.T, clock *clocktest.Manual) statestore.Store {
		return statestore.NewMemory(statestore.WithClock(clock))
	}},
	{"sqlite", func(t *testing.T, clock *clocktest.Manual) statestore.Store {
		path := filepath.Join(t.TempDir(), "state.db")
		s, err := statestore.OpenSQLite(
			context.Background(),
			path,
			statestore.WithClock(clock),
		)
		require.NoError(t, err)
		return s
	}},
}

func forEachBackend(
	t *testing.T,
	test func(t *testing.T, s statestore.Store, clock *clocktest.Manual),
) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			clock := clocktest.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
			s := b.open(t, clock)
			defer func() { require.NoError(t, s.Close()) }()
			test(t, s, clock)
		})
	}
}

func TestSetGetDel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s statestore.Store, _ *clocktest.Manual) {
		ctx := context.Background()

		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, statestore.ErrNotFound)

		ok, err := s.Set(ctx, "k", []byte("v1"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Set(ctx, "k", []byte("v2"))
		require.NoError(t, err)
		require.True(t, ok)

		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), val)

		ok, err = s.Del(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Del(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = s.Get(ctx, "k")
		require.ErrorIs(t, err, statestore.ErrNotFound)
	})
}

func TestExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s statestore.Store, clock *clocktest.Manual) {
		ctx := context.Background()

		_, err := s.Set(ctx, "short", []byte("a"), statestore.WithExpiry(time.Second))
		require.NoError(t, err)
		_, err = s.Set(ctx, "long", []byte("b"), statestore.WithExpiry(time.Minute))
		require.NoError(t, err)
		_, err = s.Set(ctx, "forever", []byte("c"))
		require.NoError(t, err)

		clock.Advance(999 * time.Millisecond)
		_, err = s.Get(ctx, "short")
		require.NoError(t, err)

		clock.Advance(time.Millisecond)
		_, err = s.Get(ctx, "short")
		require.ErrorIs(t, err, statestore.ErrNotFound)

		ok, err := s.Del(ctx, "short")
		require.NoError(t, err)
		require.False(t, ok)

		clock.Advance(time.Hour)
		_, err = s.Get(ctx, "long")
		require.ErrorIs(t, err, statestore.ErrNotFound)

		val, err := s.Get(ctx, "forever")
		require.NoError(t, err)
		require.Equal(t, []byte("c"), val)
	})
}

func TestOverwriteClearsExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s statestore.Store, clock *clocktest.Manual) {
		ctx := context.Background()

		_, err := s.Set(ctx, "k", []byte("a"), statestore.WithExpiry(time.Second))
		require.NoError(t, err)
		_, err = s.Set(ctx, "k", []byte("b"))
		require.NoError(t, err)

		clock.Advance(time.Minute)
		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("b"), val)
	})
}

func TestSetNotExists(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s statestore.Store, clock *clocktest.Manual) {
		ctx := context.Background()
		nx := statestore.WithCondition(statestore.NotExists)

		ok, err := s.Set(ctx, "k", []byte("a"), nx, statestore.WithExpiry(time.Second))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Set(ctx, "k", []byte("b"), nx)
		require.NoError(t, err)
		require.False(t, ok)

		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("a"), val)

		clock.Advance(time.Second)
		ok, err = s.Set(ctx, "k", []byte("c"), nx)
		require.NoError(t, err)
		require.True(t, ok)

		val, err = s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("c"), val)
	})
}

func TestInvalidArguments(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s statestore.Store, _ *clocktest.Manual) {
		ctx := context.Background()

		_, err := s.Get(ctx, "")
		require.ErrorIs(t, err, statestore.ErrArgument)

		_, err = s.Set(ctx, "k", nil, statestore.WithExpiry(-time.Second))
		require.ErrorIs(t, err, statestore.ErrArgument)
		require.Equal(t, statestore.ArgumentError{
			Name:  "Expiry",
			Value: -time.Second,
		}, err)

		_, err = s.Set(ctx, "k", nil, statestore.WithCondition("XX"))
		require.ErrorIs(t, err, statestore.ErrArgument)

		_, err = s.Del(ctx, "")
		require.ErrorIs(t, err, statestore.ErrArgument)
	})
}

func TestMemoryTrimsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	clock := clocktest.NewManual(time.Unix(0, 0))
	m := statestore.NewMemory(statestore.WithClock(clock))

	for i, k := range []string{"a", "b", "c"} {
		_, err := m.Set(ctx, k, nil, statestore.WithExpiry(time.Duration(i+1)*time.Second))
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Len())

	clock.Advance(2 * time.Second)
	require.Equal(t, 1, m.Len())
}

func TestSQLitePersistsAndPurges(t *testing.T) {
	ctx := context.Background()
	clock := clocktest.NewManual(time.Unix(0, 0))
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := statestore.OpenSQLite(ctx, path, statestore.WithClock(clock))
	require.NoError(t, err)
	_, err = s.Set(ctx, "keep", []byte("x"))
	require.NoError(t, err)
	_, err = s.Set(ctx, "drop", []byte("y"), statestore.WithExpiry(time.Second))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = statestore.OpenSQLite(ctx, path, statestore.WithClock(clock))
	require.NoError(t, err)
	defer s.Close()

	val, err := s.Get(ctx, "keep")
	require.NoError(t, err)
	require.Equal(t, []byte("x"), val)

	clock.Advance(time.Second)
	n, err := s.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Purge(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := statestore.OpenSQLite(context.Background(), "")
	require.ErrorIs(t, err, statestore.ErrArgument)
}
