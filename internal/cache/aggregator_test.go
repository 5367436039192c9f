package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

var testNow = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func newTestAggregator(store docstore.Store) *Aggregator {
	a := NewAggregator(store)
	a.nowFn = func() time.Time { return testNow }
	return a
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// sessionA: full academic scope, a trainer, 90 minutes.
func sessionA() *session.Session {
	return &session.Session{
		ID:                "sess-a",
		CollegeID:         "col-1",
		AssignedTrainerID: "tr-1",
		Course:            "B.E.",
		Year:              "2",
		Batch:             "A",
		Domain:            "Technical",
		SessionDate:       "2026-02-10",
		DurationMinutes:   90,
		Status:            session.StatusInactive,
		CompiledStats: &session.CompiledStats{
			TotalResponses:     10,
			RatingDistribution: map[string]int64{"4": 6, "5": 4},
			CategoryAverages:   map[string]decimal.Decimal{"knowledge": dec("4.5")},
			TopicsLearned:      []session.TopicCount{{Name: "SQL Joins", Count: 4}},
			TopComments: []session.Comment{
				{Text: "Great pacing", ResponseID: "r-1", AvgRating: dec("5")},
			},
		},
	}
}

// sessionB: no trainer, no academic scope, unreported duration.
func sessionB() *session.Session {
	return &session.Session{
		ID:          "sess-b",
		CollegeID:   "col-1",
		SessionDate: "2026-02-11",
		Status:      session.StatusInactive,
		CompiledStats: &session.CompiledStats{
			TotalResponses:     5,
			RatingDistribution: map[string]int64{"3": 5},
			CategoryAverages:   map[string]decimal.Decimal{"knowledge": dec("3")},
		},
	}
}

func applyAll(t *testing.T, a *Aggregator, sessions ...*session.Session) {
	t.Helper()
	for _, sess := range sessions {
		require.NoError(t, a.Apply(context.Background(), sess, sess.CompiledStats))
	}
}

func TestApply_FoldsCollegeAggregate(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)
	applyAll(t, a, sessionA(), sessionB())

	agg, err := NewReader(store).College(context.Background(), "col-1")
	require.NoError(t, err)

	require.Equal(t, int64(2), agg.TotalSessions)
	require.Equal(t, int64(15), agg.TotalResponses)
	require.Equal(t, int64(15), agg.TotalRatingsCount)
	require.Equal(t, "59", agg.RatingSum.String())
	require.Equal(t, "2.5", agg.TotalHours.String())
	require.Equal(t, "3.93", agg.AverageRating().StringFixed(2))

	require.Equal(t, map[string]int64{"3": 5, "4": 6, "5": 4}, agg.RatingDistribution)

	knowledge := agg.CategoryData["knowledge"]
	require.Equal(t, "60", knowledge.Sum.String())
	require.Equal(t, int64(15), knowledge.Count)
	require.Equal(t, "4", knowledge.Average().String())

	require.Equal(t, map[string]int64{"SQL Joins": 4}, agg.TopicsLearned)
}

func TestApply_CourseTreeAndDomains(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)
	applyAll(t, a, sessionA(), sessionB())

	agg, err := NewReader(store).College(context.Background(), "col-1")
	require.NoError(t, err)

	// sessionA lands under its own course, year and batch. The dot in
	// "B.E." must survive as part of the key.
	be, ok := agg.Courses["B.E."]
	require.True(t, ok)
	require.Equal(t, int64(10), be.TotalResponses)
	require.Equal(t, "44", be.RatingSum.String())
	batch := be.Years["2"].Batches["A"]
	require.Equal(t, int64(10), batch.TotalResponses)

	// sessionB carries no scope and lands under the fallbacks.
	unknown, ok := agg.Courses["Unknown"]
	require.True(t, ok)
	require.Equal(t, int64(5), unknown.TotalResponses)
	require.Equal(t, "15", unknown.RatingSum.String())
	require.Equal(t, int64(5), unknown.Years["1"].Batches["A"].TotalResponses)

	// Only sessionA named a domain.
	require.Len(t, agg.Domains, 1)
	tech := agg.Domains["Technical"]
	require.Equal(t, int64(10), tech.TotalResponses)
	require.Equal(t, "4.4", tech.AverageRating().String())
}

func TestApply_FoldsTrainerAggregate(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)
	applyAll(t, a, sessionA(), sessionB())

	agg, err := NewReader(store).Trainer(context.Background(), "tr-1")
	require.NoError(t, err)

	// Only sessionA is assigned to the trainer.
	require.Equal(t, int64(1), agg.TotalSessions)
	require.Equal(t, int64(10), agg.TotalResponses)
	require.Equal(t, "44", agg.RatingSum.String())
	require.Equal(t, "1.5", agg.TotalHours.String())

	// Trainer aggregates carry no course tree or domain rollups.
	require.Empty(t, agg.Courses)
	require.Empty(t, agg.Domains)
}

func TestApply_NoTrainerNoTrainerAggregate(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)
	applyAll(t, a, sessionB())

	require.Equal(t, 0, store.Len(TrainerCacheCollection))
	require.Equal(t, 0, store.Len(TrainerTrendsCollection))
	require.Equal(t, 1, store.Len(CollegeCacheCollection))
}

func TestApply_Trends(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)
	applyAll(t, a, sessionA(), sessionB())

	reader := NewReader(store)
	trend, err := reader.CollegeTrend(context.Background(), "col-1", "2026-02")
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"10": 10, "11": 5}, trend.DailyResponses)
	require.Equal(t, map[string]int64{"10": 1, "11": 1}, trend.DailySessions)

	trainerTrend, err := reader.TrainerTrend(context.Background(), "tr-1", "2026-02")
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"10": 10}, trainerTrend.DailyResponses)
	require.Equal(t, map[string]int64{"10": 1}, trainerTrend.DailySessions)

	// Daily counts must account for every folded response.
	var total int64
	for _, n := range trend.DailyResponses {
		total += n
	}
	require.Equal(t, int64(15), total)
}

func TestApply_MissingDateBucketsUnderNow(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)

	sess := sessionB()
	sess.SessionDate = ""
	applyAll(t, a, sess)

	trend, err := NewReader(store).CollegeTrend(context.Background(), "col-1", YearMonth(testNow))
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"15": 5}, trend.DailyResponses)
}

func TestApply_DuplicateSessionIsNoOp(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)

	sess := sessionA()
	applyAll(t, a, sess, sess)

	agg, err := NewReader(store).College(context.Background(), "col-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), agg.TotalSessions)
	require.Equal(t, int64(10), agg.TotalResponses)
	require.Equal(t, "44", agg.RatingSum.String())
}

func TestApply_OrderIndependent(t *testing.T) {
	fold := func(sessions ...*session.Session) docstore.Document {
		store := docstore.NewMemoryStore()
		a := newTestAggregator(store)
		applyAll(t, a, sessions...)
		doc, err := store.Get(context.Background(), CollegeCacheCollection, "col-1")
		require.NoError(t, err)
		return doc
	}

	ab := fold(sessionA(), sessionB())
	ba := fold(sessionB(), sessionA())
	require.Equal(t, ab, ba)
}

func TestApply_ValidatesInput(t *testing.T) {
	a := newTestAggregator(docstore.NewMemoryStore())
	ctx := context.Background()

	require.Error(t, a.Apply(ctx, nil, &session.CompiledStats{}))
	require.Error(t, a.Apply(ctx, sessionA(), nil))

	sess := sessionA()
	sess.CollegeID = ""
	require.Error(t, a.Apply(ctx, sess, sess.CompiledStats))
}

func TestApply_MergesQualitative(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)
	applyAll(t, a, sessionA())

	agg, err := NewReader(store).College(context.Background(), "col-1")
	require.NoError(t, err)
	require.NotNil(t, agg.Qualitative)
	require.Len(t, agg.Qualitative.High, 1)
	require.Equal(t, "Great pacing", agg.Qualitative.High[0].Text)
	require.Equal(t, "sess-a", agg.Qualitative.High[0].SessionID)
}

func TestApply_ConcurrentFoldsKeepAllComments(t *testing.T) {
	store := docstore.NewMemoryStore()
	a := newTestAggregator(store)

	// Concurrent folds for the same college, each carrying one distinct
	// comment. Every comment must survive the merge, just like every
	// numeric increment does.
	const n = 4
	var g errgroup.Group
	for i := 0; i < n; i++ {
		sess := sessionB()
		sess.ID = fmt.Sprintf("sess-%d", i)
		sess.CompiledStats.TopComments = []session.Comment{{
			Text:       fmt.Sprintf("comment %d", i),
			ResponseID: fmt.Sprintf("r-%d", i),
			AvgRating:  dec("5"),
		}}
		g.Go(func() error {
			return a.Apply(context.Background(), sess, sess.CompiledStats)
		})
	}
	require.NoError(t, g.Wait())

	agg, err := NewReader(store).College(context.Background(), "col-1")
	require.NoError(t, err)
	require.Equal(t, int64(n), agg.TotalSessions)
	require.Equal(t, int64(5*n), agg.TotalResponses)

	require.NotNil(t, agg.Qualitative)
	require.Len(t, agg.Qualitative.High, n)
	seen := make(map[string]bool, n)
	for _, c := range agg.Qualitative.High {
		seen[c.ResponseID] = true
	}
	require.Len(t, seen, n)
}

func TestMergeComments(t *testing.T) {
	c := func(text, responseID, rating, date string) CachedComment {
		return CachedComment{Text: text, ResponseID: responseID, Rating: dec(rating), Date: date}
	}

	t.Run("dedup by response id keeps first", func(t *testing.T) {
		merged := mergeComments(
			[]CachedComment{c("kept", "r-1", "5", "2026-02-01")},
			[]CachedComment{c("dropped", "r-1", "1", "2026-02-02")},
			commentsHigh,
		)
		require.Len(t, merged, 1)
		require.Equal(t, "kept", merged[0].Text)
	})

	t.Run("high ranks by rating desc then date desc", func(t *testing.T) {
		merged := mergeComments(nil, []CachedComment{
			c("old five", "r-1", "5", "2026-01-01"),
			c("three", "r-2", "3", "2026-02-01"),
			c("new five", "r-3", "5", "2026-02-01"),
		}, commentsHigh)
		require.Equal(t, []string{"new five", "old five", "three"},
			[]string{merged[0].Text, merged[1].Text, merged[2].Text})
	})

	t.Run("low ranks by rating asc", func(t *testing.T) {
		merged := mergeComments(nil, []CachedComment{
			c("five", "r-1", "5", "2026-02-01"),
			c("one", "r-2", "1", "2026-02-01"),
		}, commentsLow)
		require.Equal(t, "one", merged[0].Text)
	})

	t.Run("caps at five entries", func(t *testing.T) {
		var incoming []CachedComment
		for i := 0; i < 8; i++ {
			incoming = append(incoming, CachedComment{
				Text:       "c",
				ResponseID: string(rune('a' + i)),
				Rating:     decimal.NewFromInt(int64(i)),
			})
		}
		merged := mergeComments(nil, incoming, commentsHigh)
		require.Len(t, merged, maxCachedComments)
		require.Equal(t, "7", merged[0].Rating.String())
	})
}
