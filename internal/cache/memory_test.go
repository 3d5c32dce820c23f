package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aspl-project/aspl/internal/article"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryStore_SetGetRoundTrip(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	store := NewMemoryStore(clock)

	entry := Entry{
		URL:         "https://example.com/a",
		Record:      article.ArticleRecord{URL: "https://example.com/a", Title: "T", MainText: "body"},
		Fingerprint: "fp",
		FetchedAt:   clock.now,
		ExpiresAt:   clock.now.Add(time.Hour),
	}
	require.NoError(t, store.Set(context.Background(), entry))

	got, ok, err := store.Get(context.Background(), entry.URL)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry, got)
}

func TestMemoryStore_MissingKey(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(&fakeClock{now: time.Unix(1000, 0)})
	_, ok, err := store.Get(context.Background(), "https://example.com/none")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_ExpiryIsLazy(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	store := NewMemoryStore(clock)
	entry := Entry{
		URL:       "https://example.com/a",
		ExpiresAt: clock.now.Add(time.Minute),
	}
	require.NoError(t, store.Set(context.Background(), entry))

	clock.now = clock.now.Add(2 * time.Minute)
	_, ok, err := store.Get(context.Background(), entry.URL)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, store.Len())
}

func TestMemoryStore_SetSupersedesPriorEntry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	store := NewMemoryStore(clock)
	first := Entry{URL: "https://example.com/a", Fingerprint: "one", ExpiresAt: clock.now.Add(time.Hour)}
	second := Entry{URL: "https://example.com/a", Fingerprint: "two", ExpiresAt: clock.now.Add(time.Hour)}
	require.NoError(t, store.Set(context.Background(), first))
	require.NoError(t, store.Set(context.Background(), second))

	got, ok, err := store.Get(context.Background(), first.URL)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", got.Fingerprint)
	require.Equal(t, 1, store.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	store := NewMemoryStore(clock)
	entry := Entry{URL: "https://example.com/a", ExpiresAt: clock.now.Add(time.Hour)}
	require.NoError(t, store.Set(context.Background(), entry))
	require.NoError(t, store.Delete(context.Background(), entry.URL))

	_, ok, err := store.Get(context.Background(), entry.URL)
	require.NoError(t, err)
	require.False(t, ok)
}
