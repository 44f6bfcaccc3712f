package identity

import (
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW index parameters for 512-dim face embeddings
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// hnswSearchK is the candidate pool requested from the graph. The
	// nearest result can sit behind zero-norm or mismatched-dimension
	// entries that were filtered at build time, so a pool of one is
	// too tight when the graph approximates.
	hnswSearchK = 4
)

// HNSWMatcher answers FindBestMatch through an approximate nearest-neighbor
// graph instead of a linear scan. It honors the same contract as
// LinearMatcher and rebuilds its graph whenever a newer snapshot arrives.
type HNSWMatcher struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[int64]
	builtFrom *Snapshot
}

// NewHNSWMatcher creates an indexed matcher.
func NewHNSWMatcher() *HNSWMatcher {
	return &HNSWMatcher{}
}

// ensureGraph rebuilds the index when the snapshot changed since the last
// build. Snapshots are immutable, so pointer identity is enough.
func (m *HNSWMatcher) ensureGraph(snap *Snapshot) *hnsw.Graph[int64] {
	m.mu.RLock()
	if m.builtFrom == snap {
		g := m.graph
		m.mu.RUnlock()
		return g
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.builtFrom == snap {
		return m.graph
	}

	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for _, cand := range snap.Entries() {
		if len(cand.Embedding) == 0 || norm(cand.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(cand.ID, cand.Embedding))
	}

	m.graph = g
	m.builtFrom = snap
	return g
}

// FindBestMatch searches the graph and verifies the result with an exact
// cosine distance, skipping candidates whose dimension differs from the
// query's.
func (m *HNSWMatcher) FindBestMatch(query []float32, snap *Snapshot, threshold float64) MatchResult {
	result := MatchResult{Distance: math.Inf(1)}

	if len(query) == 0 || snap == nil || snap.Len() == 0 || norm(query) == 0 {
		return result
	}

	g := m.ensureGraph(snap)
	if g.Len() == 0 {
		return result
	}

	best := int64(0)
	found := false
	for _, node := range g.Search(query, hnswSearchK) {
		if len(node.Value) != len(query) {
			continue
		}
		dist := CosineDistance(query, node.Value)
		if dist < result.Distance || (dist == result.Distance && found && node.Key < best) {
			result.Distance = dist
			best = node.Key
			found = true
		}
	}

	if found && result.Distance < threshold {
		result.IdentityID = best
		result.Matched = true
	}
	return result
}
