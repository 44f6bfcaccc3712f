package identity

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Identity is a read-only copy of an enrolled person held in the cache.
type Identity struct {
	ID          int64
	DisplayName string
	Embedding   []float32
	Dim         int
}

// Snapshot is an immutable, timestamped copy of the known-identity set.
// It is replaced wholesale on refresh, never mutated in place, so readers
// across sessions always see one consistent view.
type Snapshot struct {
	entries []Identity
	byID    map[int64]int
	asOf    time.Time
}

// NewSnapshot builds a snapshot from the given identities. Entries are
// sorted by ID so matching iterates in a stable order.
func NewSnapshot(entries []Identity, asOf time.Time) *Snapshot {
	sorted := make([]Identity, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[int64]int, len(sorted))
	for i := range sorted {
		byID[sorted[i].ID] = i
	}

	return &Snapshot{entries: sorted, byID: byID, asOf: asOf}
}

// Entries returns the identities in stable ID order. Callers must not
// mutate the returned slice.
func (s *Snapshot) Entries() []Identity {
	return s.entries
}

// Get returns the identity with the given ID.
func (s *Snapshot) Get(id int64) (Identity, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Identity{}, false
	}
	return s.entries[i], true
}

// Len returns the number of identities in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// AsOf returns the snapshot build time.
func (s *Snapshot) AsOf() time.Time {
	return s.asOf
}

// Age returns how long ago the snapshot was built.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.asOf)
}

// Loader is the external identity store collaborator.
type Loader interface {
	// LoadKnownIdentities returns active identities with their stored embeddings.
	LoadKnownIdentities(ctx context.Context, activeOnly bool) ([]Identity, error)
}

// Cache holds the current snapshot of known-identity embeddings, refreshed
// from the store when stale. The snapshot pointer is swapped atomically
// under the lock; readers never observe a partially rebuilt set.
type Cache struct {
	mu       sync.RWMutex
	loader   Loader
	dim      int
	interval time.Duration
	snapshot *Snapshot
}

// NewCache creates an embedding cache. dim is the extractor's current
// output dimension; stored embeddings with a different dimension are
// incompatible enrollments and excluded from matching.
func NewCache(loader Loader, dim int, interval time.Duration) *Cache {
	return &Cache{
		loader:   loader,
		dim:      dim,
		interval: interval,
		snapshot: NewSnapshot(nil, time.Time{}),
	}
}

// Refresh rebuilds the snapshot from the identity store. Without force it
// is a no-op while the current snapshot is fresh. If the store is
// unreachable the previous snapshot stays in effect and its age is not
// reset, so staleness remains visible.
func (c *Cache) Refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && !c.snapshot.asOf.IsZero() && time.Since(c.snapshot.asOf) <= c.interval {
		return nil
	}

	loaded, err := c.loader.LoadKnownIdentities(ctx, true)
	if err != nil {
		if !c.snapshot.asOf.IsZero() {
			log.Printf("embedding cache refresh failed, serving snapshot aged %s: %v",
				time.Since(c.snapshot.asOf).Round(time.Second), err)
			return nil
		}
		return fmt.Errorf("refreshing embedding cache: %w", err)
	}

	entries := make([]Identity, 0, len(loaded))
	for _, id := range loaded {
		// Dimension mismatch means incompatible enrollment, not an error.
		if len(id.Embedding) != c.dim {
			continue
		}
		id.Dim = len(id.Embedding)
		entries = append(entries, id)
	}

	c.snapshot = NewSnapshot(entries, time.Now())
	return nil
}

// Current returns the active snapshot, rebuilding it first if its age
// exceeds the refresh interval.
func (c *Cache) Current(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	if !snap.asOf.IsZero() && time.Since(snap.asOf) <= c.interval {
		return snap, nil
	}

	if err := c.Refresh(ctx, false); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, nil
}
