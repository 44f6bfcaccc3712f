package identity

import "math"

// MatchResult is the outcome of scoring one query embedding against the
// snapshot. Distance is the true minimum observed even when no candidate
// cleared the threshold; it is +Inf only when there was no candidate at all.
type MatchResult struct {
	IdentityID int64
	Matched    bool
	Distance   float64
}

// Confidence converts the distance into a reportable score in [0,1].
// The internal no-candidate state never crosses the boundary as infinity.
func (m MatchResult) Confidence() float64 {
	if math.IsInf(m.Distance, 1) {
		return 0
	}
	c := 1 - m.Distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Matcher scores a query embedding against a snapshot of known identities.
// Implementations must be safe for concurrent use across sessions.
type Matcher interface {
	// FindBestMatch returns the closest identity whose cosine distance is
	// strictly below threshold, or an unmatched result carrying the minimum
	// distance observed.
	FindBestMatch(query []float32, snap *Snapshot, threshold float64) MatchResult
}

// LinearMatcher scans every candidate in the snapshot. Deliberately simple:
// enrollment counts are small, so the linear scan dominates neither latency
// nor memory. Larger populations should use HNSWMatcher instead.
type LinearMatcher struct{}

// NewLinearMatcher creates a linear scan matcher.
func NewLinearMatcher() *LinearMatcher {
	return &LinearMatcher{}
}

// FindBestMatch computes cosine distance against every candidate with the
// query's dimension and a nonzero norm. Ties resolve to the lowest ID via
// the snapshot's stable iteration order.
func (m *LinearMatcher) FindBestMatch(query []float32, snap *Snapshot, threshold float64) MatchResult {
	result := MatchResult{Distance: math.Inf(1)}

	if len(query) == 0 || snap == nil || snap.Len() == 0 {
		return result
	}

	queryNorm := norm(query)
	if queryNorm == 0 {
		return result
	}

	best := int64(0)
	found := false
	for _, cand := range snap.Entries() {
		if len(cand.Embedding) != len(query) {
			continue
		}

		var dot, candSq float64
		for i := range query {
			dot += float64(query[i]) * float64(cand.Embedding[i])
			candSq += float64(cand.Embedding[i]) * float64(cand.Embedding[i])
		}
		if candSq == 0 {
			continue
		}

		dist := 1 - dot/(queryNorm*math.Sqrt(candSq))
		if dist < result.Distance {
			result.Distance = dist
			best = cand.ID
			found = true
		}
	}

	if found && result.Distance < threshold {
		result.IdentityID = best
		result.Matched = true
	}
	return result
}
