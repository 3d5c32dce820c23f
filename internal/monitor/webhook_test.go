package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aspl-project/aspl/internal/article"
)

func newTestNotifier(t *testing.T) *WebhookNotifier {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewWebhookNotifier(http.DefaultClient, clock, &seqIDGen{}, 2*time.Second, zap.NewNop())
}

func sampleEvent(url string) article.ChangeEvent {
	rec := article.ArticleRecord{URL: url, Title: "Sample", MainText: "Body text."}
	return article.ChangeEvent{
		URL:                url,
		DetectedAt:         time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
		Seq:                1,
		ChangeKind:         article.ChangeUpdated,
		CurrentFingerprint: article.Fingerprint(rec),
		CurrentArticle:     &rec,
	}
}

func TestNotifyDeliversEventPayload(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var received []article.ChangeEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt article.ChangeEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
	}))
	defer srv.Close()

	n := newTestNotifier(t)
	sub, err := n.Add(srv.URL, "")
	require.NoError(t, err)
	require.True(t, sub.Active)

	n.Notify(context.Background(), sampleEvent("https://news.example.com/story"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	require.Equal(t, "https://news.example.com/story", received[0].URL)
	require.Equal(t, article.ChangeUpdated, received[0].ChangeKind)
	require.NotNil(t, received[0].CurrentArticle)
}

func TestNotifyHonorsPrefixFilter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	n := newTestNotifier(t)
	_, err := n.Add(srv.URL, "https://news.example.com/politics/")
	require.NoError(t, err)

	n.Notify(context.Background(), sampleEvent("https://news.example.com/sports/final"))
	require.EqualValues(t, 0, hits.Load())

	n.Notify(context.Background(), sampleEvent("https://news.example.com/politics/budget"))
	require.EqualValues(t, 1, hits.Load())
}

func TestNotifyDisablesAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := newTestNotifier(t)
	sub, err := n.Add(srv.URL, "")
	require.NoError(t, err)

	evt := sampleEvent("https://news.example.com/story")
	for i := 0; i < maxConsecutiveFailures; i++ {
		n.Notify(context.Background(), evt)
	}

	subs := n.List()
	require.Len(t, subs, 1)
	require.Equal(t, sub.ID, subs[0].ID)
	require.False(t, subs[0].Active)
	require.Equal(t, maxConsecutiveFailures, subs[0].FailureCount)

	// Disabled subscribers receive nothing further.
	n.Notify(context.Background(), evt)
	require.Equal(t, maxConsecutiveFailures, n.List()[0].FailureCount)
}

func TestNotifySuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	var failing bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	n := newTestNotifier(t)
	_, err := n.Add(srv.URL, "")
	require.NoError(t, err)

	evt := sampleEvent("https://news.example.com/story")
	mu.Lock()
	failing = true
	mu.Unlock()
	n.Notify(context.Background(), evt)
	n.Notify(context.Background(), evt)
	require.Equal(t, 2, n.List()[0].FailureCount)

	mu.Lock()
	failing = false
	mu.Unlock()
	n.Notify(context.Background(), evt)
	require.Equal(t, 0, n.List()[0].FailureCount)
	require.True(t, n.List()[0].Active)
}

func TestAddRejectsInvalidCallback(t *testing.T) {
	t.Parallel()
	n := newTestNotifier(t)

	_, err := n.Add("not-a-url", "")
	require.Error(t, err)
	_, err = n.Add("ftp://example.com/hook", "")
	require.Error(t, err)

	sub, err := n.Add("https://hooks.example.com/aspl", "")
	require.NoError(t, err)
	require.NoError(t, n.Remove(sub.ID))
	require.Error(t, n.Remove(sub.ID))
}
