package embedding

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/saga/store"
	storetest "github.com/hrygo/saga/store/test"
)

// mockRefresher records refreshed ids and fails for the ids in failFor.
type mockRefresher struct {
	mu       sync.Mutex
	seen     []string
	failFor  map[string]bool
	pending  map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (m *mockRefresher) Refresh(ctx context.Context, id string) (bool, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	m.mu.Lock()
	m.seen = append(m.seen, id)
	m.mu.Unlock()
	if m.failFor[id] {
		return false, errors.New("generation backend down")
	}
	return m.pending[id], nil
}

func (m *mockRefresher) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.seen...)
	sort.Strings(ids)
	return ids
}

func seed(t *testing.T, s *store.Store, id, summary string, embedding []byte) {
	t.Helper()
	_, err := s.CreateEntry(context.Background(), &store.Entry{
		ID:        id,
		Content:   "content " + id,
		Summary:   summary,
		Date:      "2024-05-01",
		Eligible:  true,
		Embedding: embedding,
	})
	require.NoError(t, err)
}

func TestNewRunner(t *testing.T) {
	s := &store.Store{}
	refresher := &mockRefresher{}

	runner := NewRunner(s, refresher, nil)

	assert.NotNil(t, runner)
	assert.Equal(t, s, runner.store)
	assert.Equal(t, refresher, runner.refresher)
	assert.Equal(t, "@every 2m", runner.schedule)
	assert.Equal(t, 8, runner.batchSize)
	assert.Equal(t, 2, runner.concurrency)
	assert.Equal(t, 160, runner.window)
}

func TestRunner_RunOnceSelectsPendingEntries(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	blob := []byte{1, 4, 1, 0, 0, 0, 0, 0, 0, 0}
	seed(t, s, "done", "You ran.", blob)
	seed(t, s, "marker", store.SummaryFailedMarker, nil)
	seed(t, s, "no-summary", "", nil)
	seed(t, s, "no-embedding", "You swam.", nil)

	refresher := &mockRefresher{}
	stats := NewRunner(s, refresher, nil).RunOnce(ctx)

	assert.Equal(t, []string{"marker", "no-embedding", "no-summary"}, refresher.ids())
	assert.Equal(t, Stats{Refreshed: 3}, stats)
}

func TestRunner_RunOnceNothingToDo(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)

	refresher := &mockRefresher{}
	stats := NewRunner(s, refresher, nil).RunOnce(ctx)

	assert.Empty(t, refresher.ids())
	assert.Equal(t, Stats{}, stats)
}

func TestRunner_FailuresDoNotStopBatch(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	for _, id := range []string{"a", "b", "c", "d"} {
		seed(t, s, id, "", nil)
	}

	refresher := &mockRefresher{
		failFor: map[string]bool{"b": true},
		pending: map[string]bool{"c": true},
	}
	stats := NewRunner(s, refresher, nil).RunOnce(ctx)

	assert.Equal(t, []string{"a", "b", "c", "d"}, refresher.ids())
	assert.Equal(t, Stats{Refreshed: 2, Pending: 1, Failed: 1}, stats)
}

func TestRunner_StuckEntriesDoNotStarveQueue(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	for _, id := range []string{"a", "b", "c"} {
		seed(t, s, id, store.SummaryFailedMarker, nil)
	}

	runner := NewRunner(s, nil, nil)
	runner.window = 2
	pass := func() ([]string, Stats) {
		refresher := &mockRefresher{pending: map[string]bool{"a": true, "b": true, "c": true}}
		runner.refresher = refresher
		stats := runner.RunOnce(ctx)
		return refresher.ids(), stats
	}

	ids, stats := pass()
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, Stats{Pending: 2}, stats)

	ids, _ = pass()
	assert.Equal(t, []string{"c"}, ids)

	ids, _ = pass()
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		seed(t, s, id, "", nil)
	}

	refresher := &mockRefresher{delay: 20 * time.Millisecond}
	runner := NewRunner(s, refresher, nil)
	runner.RunOnce(ctx)

	assert.Len(t, refresher.ids(), 6)
	assert.LessOrEqual(t, refresher.peak.Load(), int32(runner.concurrency))
}

func TestRunner_CancelledContext(t *testing.T) {
	s := storetest.NewTestingStore(context.Background(), t)
	seed(t, s, "a", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refresher := &mockRefresher{}
	stats := NewRunner(s, refresher, nil).RunOnce(ctx)
	assert.Empty(t, refresher.ids())
	assert.Equal(t, Stats{}, stats)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	s := storetest.NewTestingStore(context.Background(), t)
	seed(t, s, "a", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	refresher := &mockRefresher{}
	done := make(chan error, 1)
	go func() { done <- NewRunner(s, refresher, nil).Run(ctx) }()

	assert.Eventually(t, func() bool { return len(refresher.ids()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_InvalidSchedule(t *testing.T) {
	runner := NewRunner(&store.Store{}, &mockRefresher{}, nil)
	runner.schedule = "not a schedule"

	err := runner.Run(context.Background())
	assert.Error(t, err)
}
