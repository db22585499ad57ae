package changefeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisFeedDeliversPublishedChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	feed := NewRedisFeed(client, "test", nil)
	ctx := context.Background()

	got := make(chan Change, 1)
	unsubscribe, err := feed.Subscribe(ctx, TopicPurchaseOrders, func(c Change) { got <- c })
	require.NoError(t, err)
	defer unsubscribe()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, feed.Publish(ctx, Change{Topic: TopicPurchaseOrders, ID: "po-1", Kind: "created", Status: "draft", At: at}))

	select {
	case c := <-got:
		require.Equal(t, "po-1", c.ID)
		require.Equal(t, "created", c.Kind)
		require.True(t, at.Equal(c.At))
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}

func TestRedisFeedPublishRequiresTopic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	err := NewRedisFeed(client, "", nil).Publish(context.Background(), Change{ID: "x"})
	require.Error(t, err)

	var nilFeed *RedisFeed
	require.NoError(t, nilFeed.Publish(context.Background(), Change{Topic: TopicPurchaseOrders}))
}

func TestFingerprintTracksOrderAndStamps(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := []Ref{{ID: "1", UpdatedAt: t0}, {ID: "2", UpdatedAt: t0}}
	b := []Ref{{ID: "2", UpdatedAt: t0}, {ID: "1", UpdatedAt: t0}}
	c := []Ref{{ID: "1", UpdatedAt: t0.Add(time.Second)}, {ID: "2", UpdatedAt: t0}}

	require.Equal(t, Fingerprint(a), Fingerprint([]Ref{{ID: "1", UpdatedAt: t0}, {ID: "2", UpdatedAt: t0}}))
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
	require.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestPollerEmitsOnlyWhenSnapshotChanges(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var (
		mu   sync.Mutex
		refs = []Ref{{ID: "po-1", UpdatedAt: t0}}
	)
	snapshot := func(context.Context) ([]Ref, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]Ref(nil), refs...), nil
	}
	p := NewPoller(TopicPurchaseOrders, snapshot, 10*time.Millisecond, nil)

	var count atomic.Int32
	got := make(chan Change, 4)
	unsubscribe, err := p.Subscribe(context.Background(), TopicPurchaseOrders, func(c Change) {
		count.Add(1)
		got <- c
	})
	require.NoError(t, err)
	defer unsubscribe()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, count.Load())

	mu.Lock()
	refs = []Ref{{ID: "po-2", UpdatedAt: t0.Add(time.Minute)}, {ID: "po-1", UpdatedAt: t0}}
	mu.Unlock()

	select {
	case c := <-got:
		require.Equal(t, "po-2", c.ID)
		require.Equal(t, TopicPurchaseOrders, c.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not emit")
	}
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), count.Load())
}

func TestPollerSubscribeFailsWhenBaselineFails(t *testing.T) {
	p := NewPoller(TopicPurchaseOrders, func(context.Context) ([]Ref, error) {
		return nil, errors.New("db down")
	}, time.Second, nil)
	_, err := p.Subscribe(context.Background(), TopicPurchaseOrders, func(Change) {})
	require.Error(t, err)
}

type chanFeed struct {
	subscribed chan Handler
}

func (f *chanFeed) Publish(context.Context, Change) error { return nil }

func (f *chanFeed) Subscribe(_ context.Context, _ string, fn Handler) (Unsubscribe, error) {
	f.subscribed <- fn
	return func() {}, nil
}

func TestStreamHandlerWritesEvents(t *testing.T) {
	feed := &chanFeed{subscribed: make(chan Handler, 1)}
	srv := httptest.NewServer(StreamHandler(feed, TopicPurchaseOrders, slogDiscard()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	fn := <-feed.subscribed
	fn(Change{Topic: TopicPurchaseOrders, ID: "po-9", Kind: "approval"})

	buf := make([]byte, 512)
	var body strings.Builder
	for !strings.Contains(body.String(), "\n\n") {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		body.Write(buf[:n])
	}
	require.Contains(t, body.String(), "event: approval")
	require.Contains(t, body.String(), `"id":"po-9"`)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
