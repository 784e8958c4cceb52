package cache

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/star/rotorprep/internal/pipeline"
	"github.com/star/rotorprep/internal/polar"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func testCache(cfg Config) (*RotorCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)}
	c := NewRotorCache(cfg, testLogger())
	c.now = clock.Now
	return c, clock
}

func testEntry(id string) *Entry {
	return &Entry{
		ID: id,
		Result: &pipeline.Result{
			Tables: &polar.TableSet{
				AoA:    make([]float64, 8),
				Re:     make([]float64, 2),
				Tables: []*polar.Table{polar.NewTable(8, 2)},
			},
		},
	}
}

func TestKey(t *testing.T) {
	doc := []byte("components: {}")
	a := Key(doc, "n_span=30")
	if len(a) != 32 {
		t.Errorf("key length = %d, want 32 hex chars", len(a))
	}
	if a != Key(doc, "n_span=30") {
		t.Error("key is not deterministic")
	}
	if a == Key(doc, "n_span=31") {
		t.Error("salt does not change the key")
	}
	if a == Key([]byte("components: {} "), "n_span=30") {
		t.Error("document does not change the key")
	}
}

// TestRotorCache tests basic cache operations: put, get, stats.
func TestRotorCache(t *testing.T) {
	c, _ := testCache(Config{TTL: time.Hour, MaxEntries: 4})

	if c.Get("missing") != nil {
		t.Fatal("expected miss for unknown id")
	}

	c.Put(testEntry("a"))
	got := c.Get("a")
	if got == nil {
		t.Fatal("expected cache hit, got nil")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set on Put")
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries: got %d, want 1", stats.Entries)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses: got %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if want := int64(8 * 2 * 3 * 8); stats.SizeBytes != want {
		t.Errorf("size: got %d, want %d", stats.SizeBytes, want)
	}
}

func TestRotorCacheTTL(t *testing.T) {
	c, clock := testCache(Config{TTL: time.Minute, MaxEntries: 4})

	c.Put(testEntry("old"))
	clock.Advance(45 * time.Second)
	c.Put(testEntry("new"))
	clock.Advance(30 * time.Second)

	if c.Get("old") != nil {
		t.Error("expired entry returned")
	}
	if c.Get("new") == nil {
		t.Error("live entry missing")
	}

	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("evictExpired removed %d, want 1", removed)
	}
	if stats := c.Stats(); stats.Entries != 1 || stats.Evictions != 1 {
		t.Errorf("after sweep: entries %d evictions %d, want 1 and 1", stats.Entries, stats.Evictions)
	}
}

func TestRotorCacheEvictsOldestWhenFull(t *testing.T) {
	c, clock := testCache(Config{TTL: time.Hour, MaxEntries: 2})

	c.Put(testEntry("first"))
	clock.Advance(time.Second)
	c.Put(testEntry("second"))
	clock.Advance(time.Second)

	// Replacing an existing ID does not evict.
	c.Put(testEntry("second"))
	if c.Stats().Evictions != 0 {
		t.Fatal("replacing an entry evicted another")
	}

	c.Put(testEntry("third"))
	if c.Get("first") != nil {
		t.Error("oldest entry survived")
	}
	if c.Get("second") == nil || c.Get("third") == nil {
		t.Error("newer entries were evicted")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestRotorCacheStartStops(t *testing.T) {
	c, _ := testCache(Config{TTL: time.Hour, MaxEntries: 2, SweepInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRotorCacheConcurrentAccess(t *testing.T) {
	c, _ := testCache(Config{TTL: time.Hour, MaxEntries: 8})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				c.Put(testEntry(id))
				c.Get(id)
				c.Stats()
			}
		}(i)
	}
	wg.Wait()
	if got := c.Stats().Entries; got != 8 {
		t.Errorf("entries = %d, want 8", got)
	}
}
