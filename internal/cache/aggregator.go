// Package cache maintains the denormalized analytics aggregates:
// one running-total document per college and per trainer, plus
// per-month daily trend records. Every mutation is an additive
// increment, so folds commute and interleave safely; no cross-document
// transaction is ever taken.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	"github.com/pulseboard-labs/pulseboard/internal/core/stats"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

// Aggregator folds closed sessions into the analytics aggregates.
type Aggregator struct {
	store docstore.Store
	nowFn func() time.Time
}

// NewAggregator creates an aggregator over the given document store.
func NewAggregator(store docstore.Store) *Aggregator {
	if store == nil {
		panic("cache: store must not be nil")
	}
	return &Aggregator{store: store, nowFn: time.Now}
}

// Apply folds one closed session's compiled stats into the college
// aggregate, the trainer aggregate (when a trainer is assigned) and
// both entities' trend records.
//
// Apply is idempotent per session: the first call claims a ledger entry
// and later calls return nil without touching the aggregates. The
// college, trainer and trend documents are updated independently, so a
// failure can leave a partial fold behind; a rebuild replays everything
// from the session records and corrects any such drift.
func (a *Aggregator) Apply(ctx context.Context, sess *session.Session, cs *session.CompiledStats) error {
	if sess == nil || cs == nil {
		return fmt.Errorf("apply: session and stats are required")
	}
	if sess.CollegeID == "" {
		return fmt.Errorf("apply session %q: collegeId is required", sess.ID)
	}

	claimed, err := a.claim(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Debug("Session already folded, skipping", "session_id", sess.ID)
		return nil
	}

	contrib := stats.FromStats(*cs, sess.DurationMinutes)
	date := sess.Date(a.nowFn)
	scope := treeScope{
		course: orDefault(sess.Course, defaultCourse),
		year:   orDefault(sess.Year, defaultYear),
		batch:  orDefault(sess.Batch, defaultBatch),
		domain: sess.Domain,
	}

	// College and trainer documents are disjoint; update them
	// concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.foldEntity(gctx, CollegeCacheCollection, sess.CollegeID, contrib, &scope); err != nil {
			return fmt.Errorf("fold college %q: %w", sess.CollegeID, err)
		}
		return a.foldTrend(gctx, CollegeTrendsCollection, sess.CollegeID, date, contrib)
	})
	if sess.AssignedTrainerID != "" {
		g.Go(func() error {
			if err := a.foldEntity(gctx, TrainerCacheCollection, sess.AssignedTrainerID, contrib, nil); err != nil {
				return fmt.Errorf("fold trainer %q: %w", sess.AssignedTrainerID, err)
			}
			return a.foldTrend(gctx, TrainerTrendsCollection, sess.AssignedTrainerID, date, contrib)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Comment lists are non-critical; never fail the fold over them.
	if err := a.mergeQualitative(ctx, sess, cs); err != nil {
		slog.Warn("Qualitative cache update failed",
			"session_id", sess.ID,
			"error", err,
		)
	}

	a.finishClaim(ctx, sess.ID)
	return nil
}

// claim reserves the session in the fold ledger. Returns false when the
// session was claimed before. A claim that never completes (fold error
// mid-way) stays in the ledger and is resolved by the next rebuild,
// which clears the ledger and replays every session.
func (a *Aggregator) claim(ctx context.Context, sessionID string) (bool, error) {
	err := a.store.Create(ctx, LedgerCollection, sessionID, docstore.Document{
		"status":    "pending",
		"claimedAt": a.nowFn().UTC().Format(time.RFC3339),
	})
	if errors.Is(err, docstore.ErrExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim session %q: %w", sessionID, err)
	}
	return true, nil
}

func (a *Aggregator) finishClaim(ctx context.Context, sessionID string) {
	err := a.store.Set(ctx, LedgerCollection, sessionID, []docstore.FieldValue{
		docstore.Value(docstore.Path("status"), "done"),
		docstore.Value(docstore.Path("foldedAt"), a.nowFn().UTC().Format(time.RFC3339)),
	})
	if err != nil {
		slog.Warn("Ledger completion write failed", "session_id", sessionID, "error", err)
	}
}

// treeScope carries the course→year→batch leaf (and optional domain)
// a session folds into on the college aggregate.
type treeScope struct {
	course string
	year   string
	batch  string
	domain string
}

// foldEntity folds a contribution into one aggregate document. The flat
// fields are authoritative and their failure propagates; the nested
// course tree is a denormalized secondary view that may lag, so its
// failure is downgraded to a warning.
func (a *Aggregator) foldEntity(
	ctx context.Context,
	collection, id string,
	contrib stats.Contribution,
	scope *treeScope,
) error {
	_, err := a.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		createErr := a.store.Create(ctx, collection, id, seedAggregate(contrib, scope, a.nowFn()))
		if createErr == nil {
			return nil
		}
		if !errors.Is(createErr, docstore.ErrExists) {
			return createErr
		}
		// Lost the create race; fall through to increments.
	} else if err != nil {
		return err
	}

	if err := a.store.Increment(ctx, collection, id, flatDeltas(contrib, scope)); err != nil {
		return err
	}

	if scope != nil {
		if err := a.store.Increment(ctx, collection, id, treeDeltas(contrib, scope)); err != nil {
			slog.Warn("Course tree increment failed, flat totals remain authoritative",
				"collection", collection,
				"doc_id", id,
				"error", err,
			)
		}
	}

	err = a.store.Set(ctx, collection, id, []docstore.FieldValue{
		docstore.Value(docstore.Path("updatedAt"), a.nowFn().UTC().Format(time.RFC3339)),
	})
	if err != nil {
		slog.Warn("updatedAt write failed", "collection", collection, "doc_id", id, "error", err)
	}
	return nil
}

func (a *Aggregator) foldTrend(
	ctx context.Context,
	collection, entityID string,
	date time.Time,
	contrib stats.Contribution,
) error {
	yearMonth := YearMonth(date)
	day := DayOfMonth(date)
	id := TrendDocID(entityID, yearMonth)

	_, err := a.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		createErr := a.store.Create(ctx, collection, id, docstore.Document{
			"yearMonth":      yearMonth,
			"dailyResponses": docstore.Document{day: jsonInt(contrib.Responses)},
			"dailySessions":  docstore.Document{day: jsonInt(1)},
		})
		if createErr == nil {
			return nil
		}
		if !errors.Is(createErr, docstore.ErrExists) {
			return fmt.Errorf("create trend %q: %w", id, createErr)
		}
	} else if err != nil {
		return fmt.Errorf("read trend %q: %w", id, err)
	}

	deltas := []docstore.FieldDelta{
		docstore.Delta(docstore.Path("dailyResponses", day), decimal.NewFromInt(contrib.Responses)),
		docstore.Delta(docstore.Path("dailySessions", day), decimal.NewFromInt(1)),
	}
	if err := a.store.Increment(ctx, collection, id, deltas); err != nil {
		return fmt.Errorf("increment trend %q: %w", id, err)
	}
	return nil
}

// flatDeltas builds the authoritative increments: top-level totals,
// rating buckets, per-category sums, topics and domain rollups.
func flatDeltas(contrib stats.Contribution, scope *treeScope) []docstore.FieldDelta {
	deltas := []docstore.FieldDelta{
		docstore.Delta(docstore.Path("totalSessions"), decimal.NewFromInt(contrib.Sessions)),
		docstore.Delta(docstore.Path("totalResponses"), decimal.NewFromInt(contrib.Responses)),
		docstore.Delta(docstore.Path("totalRatingsCount"), decimal.NewFromInt(contrib.RatingsCount)),
		docstore.Delta(docstore.Path("ratingSum"), contrib.RatingSum),
		docstore.Delta(docstore.Path("totalHours"), contrib.Hours),
	}
	for rating, count := range contrib.RatingDistribution {
		deltas = append(deltas, docstore.Delta(
			docstore.Path("ratingDistribution", rating),
			decimal.NewFromInt(count),
		))
	}
	for cat, cd := range contrib.Categories {
		base := docstore.Path("categoryData", cat)
		deltas = append(deltas,
			docstore.Delta(base.Child("sum"), cd.Sum),
			docstore.Delta(base.Child("count"), decimal.NewFromInt(cd.Count)),
		)
	}
	for topic, count := range contrib.Topics {
		deltas = append(deltas, docstore.Delta(
			docstore.Path("topicsLearned", topic),
			decimal.NewFromInt(count),
		))
	}
	if scope != nil && scope.domain != "" {
		base := docstore.Path("domains", docstore.SanitizeSegment(scope.domain))
		deltas = append(deltas, rollupDeltas(base, contrib)...)
	}
	return deltas
}

// treeDeltas builds the course→year→batch rollup increments. Each
// level is incremented in parallel with the flat totals rather than
// derived from its children.
func treeDeltas(contrib stats.Contribution, scope *treeScope) []docstore.FieldDelta {
	coursePath := docstore.Path("courses", scope.course)
	yearPath := coursePath.Child("years", scope.year)
	batchPath := yearPath.Child("batches", scope.batch)

	deltas := rollupDeltas(coursePath, contrib)
	deltas = append(deltas, rollupDeltas(yearPath, contrib)...)
	deltas = append(deltas, rollupDeltas(batchPath, contrib)...)
	return deltas
}

func rollupDeltas(base docstore.FieldPath, contrib stats.Contribution) []docstore.FieldDelta {
	return []docstore.FieldDelta{
		docstore.Delta(base.Child("totalResponses"), decimal.NewFromInt(contrib.Responses)),
		docstore.Delta(base.Child("totalRatingsCount"), decimal.NewFromInt(contrib.RatingsCount)),
		docstore.Delta(base.Child("ratingSum"), contrib.RatingSum),
	}
}

// seedAggregate builds a brand-new aggregate document carrying exactly
// one session's contribution. scope is nil for trainer aggregates,
// which have no course tree or domain rollups.
func seedAggregate(contrib stats.Contribution, scope *treeScope, now time.Time) docstore.Document {
	distribution := make(docstore.Document, len(contrib.RatingDistribution))
	for rating, count := range contrib.RatingDistribution {
		distribution[rating] = jsonInt(count)
	}

	categories := make(docstore.Document, len(contrib.Categories))
	for cat, cd := range contrib.Categories {
		categories[cat] = docstore.Document{
			"sum":   jsonDec(cd.Sum),
			"count": jsonInt(cd.Count),
		}
	}

	topics := make(docstore.Document, len(contrib.Topics))
	for topic, count := range contrib.Topics {
		topics[topic] = jsonInt(count)
	}

	doc := docstore.Document{
		"totalSessions":      jsonInt(contrib.Sessions),
		"totalResponses":     jsonInt(contrib.Responses),
		"totalRatingsCount":  jsonInt(contrib.RatingsCount),
		"ratingSum":          jsonDec(contrib.RatingSum),
		"totalHours":         jsonDec(contrib.Hours),
		"ratingDistribution": distribution,
		"categoryData":       categories,
		"topicsLearned":      topics,
		"updatedAt":          now.UTC().Format(time.RFC3339),
	}

	if scope != nil {
		rollup := func() docstore.Document {
			return docstore.Document{
				"totalResponses":    jsonInt(contrib.Responses),
				"totalRatingsCount": jsonInt(contrib.RatingsCount),
				"ratingSum":         jsonDec(contrib.RatingSum),
			}
		}

		batchLevel := rollup()
		yearLevel := rollup()
		yearLevel["batches"] = docstore.Document{scope.batch: batchLevel}
		courseLevel := rollup()
		courseLevel["years"] = docstore.Document{scope.year: yearLevel}
		doc["courses"] = docstore.Document{scope.course: courseLevel}

		domains := docstore.Document{}
		if scope.domain != "" {
			domains[docstore.SanitizeSegment(scope.domain)] = rollup()
		}
		doc["domains"] = domains
	}

	return doc
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// jsonInt and jsonDec render numbers as json.Number so document bodies
// serialize as JSON numerics with no float round trip.
func jsonInt(v int64) json.Number {
	return json.Number(strconv.FormatInt(v, 10))
}

func jsonDec(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
