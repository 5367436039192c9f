package session

import (
	"context"
	"fmt"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
)

// Collection is the document collection owned by the session-management
// subsystem. The analytics core only ever reads from it.
const Collection = "sessions"

// Source lists sessions for the analytics core.
type Source interface {
	ListByStatus(ctx context.Context, status string) ([]Session, error)
	Get(ctx context.Context, id string) (*Session, error)
}

// Repository reads sessions out of the shared document store.
type Repository struct {
	store docstore.Store
}

// NewRepository creates a read-only session repository.
func NewRepository(store docstore.Store) *Repository {
	if store == nil {
		panic("session: store must not be nil")
	}
	return &Repository{store: store}
}

func (r *Repository) ListByStatus(ctx context.Context, status string) ([]Session, error) {
	entries, err := r.store.Query(ctx, Collection, "status", status)
	if err != nil {
		return nil, fmt.Errorf("list sessions by status %q: %w", status, err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, entry := range entries {
		var s Session
		if err := docstore.Decode(entry.Doc, &s); err != nil {
			return nil, fmt.Errorf("decode session %q: %w", entry.ID, err)
		}
		s.ID = entry.ID
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", id, err)
	}
	var s Session
	if err := docstore.Decode(doc, &s); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", id, err)
	}
	s.ID = id
	return &s, nil
}
