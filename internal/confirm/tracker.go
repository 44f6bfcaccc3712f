// Package confirm tracks consecutive-match streaks for a recognition
// session and decides when a matched identity becomes eligible for an
// attendance commit.
package confirm

// Decision is the tracker's verdict for one observed frame.
type Decision struct {
	IdentityID int64
	Streak     int
	Required   int
	// Confirmed reports that the streak has reached the required length.
	// It stays true on later frames of the same streak.
	Confirmed bool
	// Commit fires exactly once per identity per session, on the frame
	// where the streak first reaches the required length.
	Commit bool
}

// Tracker holds the streak state for a single session. One tracker per
// session, created at session start. Not safe for concurrent use.
type Tracker struct {
	required  int
	tracking  bool
	lastID    int64
	streak    int
	committed map[int64]bool
}

// NewTracker creates a tracker requiring the given number of consecutive
// matching frames before an identity is confirmed.
func NewTracker(required int) *Tracker {
	if required < 1 {
		required = 1
	}
	return &Tracker{
		required:  required,
		committed: make(map[int64]bool),
	}
}

// Observe feeds one frame's match outcome into the tracker. A missed
// match discards any in-progress streak. A match for a different
// identity than the tracked one restarts the streak at 1.
//
// Once an identity is marked committed it never produces another commit
// signal in this session, even if the store rejects the actual write.
func (t *Tracker) Observe(identityID int64, matched bool) Decision {
	if !matched {
		t.tracking = false
		t.streak = 0
		return Decision{Required: t.required}
	}

	if !t.tracking || identityID != t.lastID {
		t.tracking = true
		t.lastID = identityID
		t.streak = 1
	} else {
		t.streak++
	}

	d := Decision{
		IdentityID: identityID,
		Streak:     t.streak,
		Required:   t.required,
		Confirmed:  t.streak >= t.required,
	}

	if d.Confirmed && !t.committed[identityID] {
		t.committed[identityID] = true
		d.Commit = true
	}
	return d
}

// Committed reports whether the identity already produced its commit
// signal in this session.
func (t *Tracker) Committed(identityID int64) bool {
	return t.committed[identityID]
}

// CommittedCount returns how many identities were confirmed in this
// session.
func (t *Tracker) CommittedCount() int {
	return len(t.committed)
}

// Reset clears the streak and the committed set, starting a fresh
// session.
func (t *Tracker) Reset() {
	t.tracking = false
	t.lastID = 0
	t.streak = 0
	t.committed = make(map[int64]bool)
}
