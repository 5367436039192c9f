package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pulseboard-labs/pulseboard/internal/session"
)

const defaultRebuildWorkers = 4

// clearedCollections are wiped before a replay. The ledger must go too,
// otherwise every replayed session would be skipped as already folded.
var clearedCollections = []string{
	CollegeCacheCollection,
	TrainerCacheCollection,
	CollegeTrendsCollection,
	TrainerTrendsCollection,
	LedgerCollection,
}

// Report summarizes one rebuild run.
type Report struct {
	RunID      string         `json:"run_id"`
	Processed  int            `json:"processed"`
	Skipped    int            `json:"skipped"`
	Errors     []SessionError `json:"errors"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// SessionError records one session that failed to fold during a rebuild.
type SessionError struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Rebuilder recomputes every aggregate from the closed-session records.
type Rebuilder struct {
	aggregator *Aggregator
	sessions   session.Source
	workers    int
	nowFn      func() time.Time
}

// NewRebuilder creates a rebuilder. workers bounds fold concurrency;
// values <= 0 fall back to the default.
func NewRebuilder(aggregator *Aggregator, sessions session.Source, workers int) *Rebuilder {
	if aggregator == nil {
		panic("cache: aggregator must not be nil")
	}
	if sessions == nil {
		panic("cache: session source must not be nil")
	}
	if workers <= 0 {
		workers = defaultRebuildWorkers
	}
	return &Rebuilder{
		aggregator: aggregator,
		sessions:   sessions,
		workers:    workers,
		nowFn:      time.Now,
	}
}

// Run wipes both aggregate collections (with their trend records and
// the fold ledger) and replays every closed session. Folds are
// commutative increments over a clean slate, so running Run twice with
// an unchanged session set produces identical documents regardless of
// replay order.
//
// Per-session failures are recorded in the report and do not abort the
// replay. Only a failed clear or a failed session listing aborts the
// run; the clear itself is idempotent, so a failed run is always safe
// to retry.
func (r *Rebuilder) Run(ctx context.Context) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: r.nowFn().UTC(),
	}

	slog.Info("Starting cache rebuild", "run_id", report.RunID)

	for _, collection := range clearedCollections {
		if err := r.aggregator.store.DeleteAll(ctx, collection); err != nil {
			return report, fmt.Errorf("clear collection %q: %w", collection, err)
		}
	}
	slog.Info("Cleared aggregate collections", "run_id", report.RunID, "collections", len(clearedCollections))

	sessions, err := r.sessions.ListByStatus(ctx, session.StatusInactive)
	if err != nil {
		return report, fmt.Errorf("list closed sessions: %w", err)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	slog.Info("Replaying closed sessions",
		"run_id", report.RunID,
		"session_count", len(sessions),
		"workers", r.workers,
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, sess := range sessions {
		if sess.CompiledStats == nil {
			slog.Warn("Skipping session without compiled stats", "run_id", report.RunID, "session_id", sess.ID)
			report.Skipped++
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.aggregator.Apply(gctx, &sess, sess.CompiledStats); err != nil {
				slog.Error("Session fold failed during rebuild",
					"run_id", report.RunID,
					"session_id", sess.ID,
					"error", err,
				)
				mu.Lock()
				report.Errors = append(report.Errors, SessionError{
					SessionID: sess.ID,
					Message:   err.Error(),
				})
				mu.Unlock()
				return nil // best-effort: keep replaying
			}
			mu.Lock()
			report.Processed++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("rebuild interrupted: %w", err)
	}

	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].SessionID < report.Errors[j].SessionID
	})
	report.FinishedAt = r.nowFn().UTC()

	slog.Info("Cache rebuild complete",
		"run_id", report.RunID,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}
