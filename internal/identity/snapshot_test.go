package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubLoader is a Loader backed by a fixed identity list with error injection.
type stubLoader struct {
	identities []Identity
	err        error
	calls      int
}

func (s *stubLoader) LoadKnownIdentities(ctx context.Context, activeOnly bool) ([]Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.identities, nil
}

func TestCacheRefreshFiltersDimensionMismatch(t *testing.T) {
	loader := &stubLoader{identities: []Identity{
		{ID: 1, DisplayName: "ok", Embedding: []float32{1, 0}},
		{ID: 2, DisplayName: "legacy", Embedding: []float32{1, 0, 0}},
	}}
	cache := NewCache(loader, 2, time.Minute)

	if err := cache.Refresh(context.Background(), true); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	snap, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("expected 1 compatible identity, got %d", snap.Len())
	}
	if _, ok := snap.Get(2); ok {
		t.Error("incompatible enrollment must be excluded from the snapshot")
	}
}

func TestCacheRefreshIsLazyWhileFresh(t *testing.T) {
	loader := &stubLoader{identities: []Identity{{ID: 1, Embedding: []float32{1, 0}}}}
	cache := NewCache(loader, 2, time.Minute)

	for range 5 {
		if _, err := cache.Current(context.Background()); err != nil {
			t.Fatalf("current failed: %v", err)
		}
	}
	if loader.calls != 1 {
		t.Errorf("expected a single load while fresh, got %d", loader.calls)
	}
}

func TestCacheServesStaleSnapshotOnStoreFailure(t *testing.T) {
	loader := &stubLoader{identities: []Identity{{ID: 1, Embedding: []float32{1, 0}}}}
	cache := NewCache(loader, 2, time.Minute)

	if err := cache.Refresh(context.Background(), true); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	snapBefore, _ := cache.Current(context.Background())

	loader.err = errors.New("store unreachable")
	if err := cache.Refresh(context.Background(), true); err != nil {
		t.Fatalf("refresh with stale fallback must not fail: %v", err)
	}

	snapAfter, _ := cache.Current(context.Background())
	if snapAfter.Len() != 1 {
		t.Fatalf("expected previous snapshot to remain, got %d entries", snapAfter.Len())
	}
	// The age must not be reset: staleness persists, not silently absorbed.
	if !snapAfter.AsOf().Equal(snapBefore.AsOf()) {
		t.Error("snapshot age was reset on failed refresh")
	}
}

func TestCacheFirstRefreshFailureIsAnError(t *testing.T) {
	loader := &stubLoader{err: errors.New("store unreachable")}
	cache := NewCache(loader, 2, time.Minute)

	if err := cache.Refresh(context.Background(), true); err == nil {
		t.Fatal("expected error when no previous snapshot exists")
	}
}

func TestCacheCurrentRebuildsWhenStale(t *testing.T) {
	loader := &stubLoader{identities: []Identity{{ID: 1, Embedding: []float32{1, 0}}}}
	cache := NewCache(loader, 2, time.Nanosecond)

	if err := cache.Refresh(context.Background(), true); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	loader.identities = append(loader.identities, Identity{ID: 2, Embedding: []float32{0, 1}})
	snap, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}
	if snap.Len() != 2 {
		t.Errorf("expected stale snapshot to be rebuilt, got %d entries", snap.Len())
	}
}

func TestSnapshotStableOrder(t *testing.T) {
	snap := NewSnapshot([]Identity{
		{ID: 9, Embedding: []float32{1}},
		{ID: 2, Embedding: []float32{1}},
		{ID: 5, Embedding: []float32{1}},
	}, time.Now())

	entries := snap.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ID >= entries[i].ID {
			t.Fatalf("entries not sorted by ID: %v", entries)
		}
	}
}
