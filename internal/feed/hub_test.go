package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/metrics"
)

type recorder struct {
	mu     sync.Mutex
	events []backend.Event
}

func (r *recorder) handle(ev backend.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.ID)
	}
	return out
}

func TestHubDeliversInOrderPerList(t *testing.T) {
	h := NewHub(nil)
	var l1, l2 recorder
	s1, err := h.Subscribe(context.Background(), "l1", l1.handle)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := h.Subscribe(context.Background(), "l2", l2.handle)
	require.NoError(t, err)
	defer s2.Close()

	h.Publish(backend.Event{Kind: backend.EventDelete, ListID: "l1", ID: "a"})
	h.Publish(backend.Event{Kind: backend.EventDelete, ListID: "l2", ID: "x"})
	h.Publish(backend.Event{Kind: backend.EventDelete, ListID: "l1", ID: "b"})

	require.Eventually(t, func() bool { return len(l1.ids()) == 2 && len(l2.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, l1.ids())
	assert.Equal(t, []string{"x"}, l2.ids())
}

func TestHubCloseStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	var r recorder
	sub, err := h.Subscribe(context.Background(), "l1", r.handle)
	require.NoError(t, err)
	require.Equal(t, 1, h.Subscribers("l1"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, h.Subscribers("l1"))

	h.Publish(backend.Event{Kind: backend.EventDelete, ListID: "l1", ID: "a"})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.ids())
}

func TestHubContextCancelUnsubscribes(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.Subscribe(ctx, "l1", func(backend.Event) {})
	require.NoError(t, err)
	cancel()
	require.Eventually(t, func() bool { return h.Subscribers("l1") == 0 }, time.Second, 5*time.Millisecond)
}

type gauge struct {
	metrics.Nop
	mu sync.Mutex
	n  int
}

func (g *gauge) Subscribers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}

func TestHubReportsSubscriberCount(t *testing.T) {
	h := NewHub(nil)
	g := &gauge{}
	h.Instrument(g)
	a, err := h.Subscribe(context.Background(), "l1", func(backend.Event) {})
	require.NoError(t, err)
	b, err := h.Subscribe(context.Background(), "l2", func(backend.Event) {})
	require.NoError(t, err)
	assert.Equal(t, 2, g.n)
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, g.n)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	release := make(chan struct{})
	defer close(release)
	sub, err := h.Subscribe(context.Background(), "l1", func(backend.Event) { <-release })
	require.NoError(t, err)
	var fast recorder
	other, err := h.Subscribe(context.Background(), "l2", fast.handle)
	require.NoError(t, err)
	defer other.Close()

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < subscriberBuffer+2; i++ {
			h.Publish(backend.Event{Kind: backend.EventDelete, ListID: "l1", ID: "a"})
		}
		h.Publish(backend.Event{Kind: backend.EventDelete, ListID: "l2", ID: "x"})
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	select {
	case <-sub.(backend.Ender).Done():
	default:
		t.Fatal("slow subscriber should have been dropped")
	}
	assert.Equal(t, 0, h.Subscribers("l1"))
	require.Eventually(t, func() bool { return len(fast.ids()) == 1 }, time.Second, 5*time.Millisecond)
}
