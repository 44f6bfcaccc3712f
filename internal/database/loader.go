package database

import (
	"context"

	"github.com/facegate/facegate/internal/identity"
)

// IdentityLoader adapts a StudentStore to the embedding cache's loader
// interface. Students without a stored embedding are skipped.
type IdentityLoader struct {
	store StudentStore
}

// NewIdentityLoader wraps the given store.
func NewIdentityLoader(store StudentStore) *IdentityLoader {
	return &IdentityLoader{store: store}
}

// LoadKnownIdentities fetches enrolled students and converts them to
// matchable identities.
func (l *IdentityLoader) LoadKnownIdentities(ctx context.Context, activeOnly bool) ([]identity.Identity, error) {
	students, err := l.store.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}

	out := make([]identity.Identity, 0, len(students))
	for _, s := range students {
		if len(s.Embedding) == 0 {
			continue
		}
		out = append(out, identity.Identity{
			ID:          s.ID,
			DisplayName: s.Name,
			Embedding:   s.Embedding,
			Dim:         s.Dim,
		})
	}
	return out, nil
}
