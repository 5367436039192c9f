// Package closeout is the session-close entry point: it stamps the
// final compiled stats onto a session, flips it inactive and folds it
// into the analytics aggregates.
package closeout

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard-labs/pulseboard/internal/cache"
	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

type Service struct {
	store            docstore.Store
	sessions         session.Source
	aggregator       *cache.Aggregator
	maxBodySizeBytes int
}

func NewService(store docstore.Store, sessions session.Source, aggregator *cache.Aggregator, maxBodySizeMB int) *Service {
	if store == nil {
		panic("closeout: store must not be nil")
	}
	if sessions == nil {
		panic("closeout: session source must not be nil")
	}
	if aggregator == nil {
		panic("closeout: aggregator must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	return &Service{
		store:            store,
		sessions:         sessions,
		aggregator:       aggregator,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the closeout routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/sessions/:session_id/close", s.CloseHandler)
}

// close persists the compiled stats, marks the session inactive and
// folds it. Compiled stats are immutable once set: closing an already
// inactive session is rejected before anything is written.
func (s *Service) close(ctx context.Context, sessionID string, cs *session.CompiledStats) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusInactive {
		return nil, errAlreadyClosed
	}

	stats, err := docstore.Encode(cs)
	if err != nil {
		return nil, fmt.Errorf("encode compiled stats: %w", err)
	}
	err = s.store.Set(ctx, session.Collection, sessionID, []docstore.FieldValue{
		docstore.Value(docstore.Path("status"), session.StatusInactive),
		docstore.Value(docstore.Path("compiledStats"), stats),
	})
	if err != nil {
		return nil, fmt.Errorf("mark session inactive: %w", err)
	}

	sess.Status = session.StatusInactive
	sess.CompiledStats = cs

	// Fold failures propagate to the caller; the session stays closed
	// and the next rebuild picks up its contribution.
	if err := s.aggregator.Apply(ctx, sess, cs); err != nil {
		return nil, fmt.Errorf("fold session %q: %w", sessionID, err)
	}
	return sess, nil
}
