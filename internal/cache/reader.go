package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
)

// Rollup is the partial total kept at each level of the course tree,
// on domain entries, and on whole aggregates.
type Rollup struct {
	TotalResponses    int64           `json:"totalResponses"`
	TotalRatingsCount int64           `json:"totalRatingsCount"`
	RatingSum         decimal.Decimal `json:"ratingSum"`
}

// AverageRating reports the mean rating, or zero when nothing was rated.
func (r Rollup) AverageRating() decimal.Decimal {
	if r.TotalRatingsCount == 0 {
		return decimal.Zero
	}
	return r.RatingSum.Div(decimal.NewFromInt(r.TotalRatingsCount))
}

// CategoryStat is the running mean state for one question category.
type CategoryStat struct {
	Sum   decimal.Decimal `json:"sum"`
	Count int64           `json:"count"`
}

// Average reports the category mean, or zero when no answers were folded.
func (c CategoryStat) Average() decimal.Decimal {
	if c.Count == 0 {
		return decimal.Zero
	}
	return c.Sum.Div(decimal.NewFromInt(c.Count))
}

// BatchStat, YearStat and CourseStat form the nested course tree on
// college aggregates.
type BatchStat struct {
	Rollup
}

type YearStat struct {
	Rollup
	Batches map[string]BatchStat `json:"batches,omitempty"`
}

type CourseStat struct {
	Rollup
	Years map[string]YearStat `json:"years,omitempty"`
}

// Aggregate is the denormalized running-total document for one college
// or trainer. Trainer aggregates carry no course tree or domains.
type Aggregate struct {
	ID                 string                  `json:"id"`
	TotalSessions      int64                   `json:"totalSessions"`
	TotalResponses     int64                   `json:"totalResponses"`
	TotalRatingsCount  int64                   `json:"totalRatingsCount"`
	RatingSum          decimal.Decimal         `json:"ratingSum"`
	TotalHours         decimal.Decimal         `json:"totalHours"`
	RatingDistribution map[string]int64        `json:"ratingDistribution,omitempty"`
	CategoryData       map[string]CategoryStat `json:"categoryData,omitempty"`
	TopicsLearned      map[string]int64        `json:"topicsLearned,omitempty"`
	Domains            map[string]Rollup       `json:"domains,omitempty"`
	Courses            map[string]CourseStat   `json:"courses,omitempty"`
	Qualitative        *Qualitative            `json:"qualitative,omitempty"`
	UpdatedAt          string                  `json:"updatedAt,omitempty"`
}

// AverageRating reports the aggregate-wide mean rating.
func (a *Aggregate) AverageRating() decimal.Decimal {
	return Rollup{
		TotalResponses:    a.TotalResponses,
		TotalRatingsCount: a.TotalRatingsCount,
		RatingSum:         a.RatingSum,
	}.AverageRating()
}

// Trend is the per-day breakdown for one (entity, year-month).
type Trend struct {
	YearMonth      string           `json:"yearMonth"`
	DailyResponses map[string]int64 `json:"dailyResponses"`
	DailySessions  map[string]int64 `json:"dailySessions"`
}

// Reader serves aggregate and trend documents to dashboards.
type Reader struct {
	store docstore.Store
}

// NewReader creates a read-only view over the aggregate collections.
func NewReader(store docstore.Store) *Reader {
	if store == nil {
		panic("cache: store must not be nil")
	}
	return &Reader{store: store}
}

// College returns the college aggregate, or docstore.ErrNotFound when
// no session has ever been folded for it.
func (r *Reader) College(ctx context.Context, collegeID string) (*Aggregate, error) {
	return r.aggregate(ctx, CollegeCacheCollection, collegeID)
}

// Trainer returns the trainer aggregate, or docstore.ErrNotFound.
func (r *Reader) Trainer(ctx context.Context, trainerID string) (*Aggregate, error) {
	return r.aggregate(ctx, TrainerCacheCollection, trainerID)
}

func (r *Reader) aggregate(ctx context.Context, collection, id string) (*Aggregate, error) {
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("read aggregate %s/%s: %w", collection, id, err)
	}
	var agg Aggregate
	if err := docstore.Decode(doc, &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate %s/%s: %w", collection, id, err)
	}
	agg.ID = id
	return &agg, nil
}

// CollegeTrend returns the college's trend record for a month. A month
// with no folded sessions yields empty maps, not an error.
func (r *Reader) CollegeTrend(ctx context.Context, collegeID, yearMonth string) (*Trend, error) {
	return r.trend(ctx, CollegeTrendsCollection, collegeID, yearMonth)
}

// TrainerTrend is the trainer twin of CollegeTrend.
func (r *Reader) TrainerTrend(ctx context.Context, trainerID, yearMonth string) (*Trend, error) {
	return r.trend(ctx, TrainerTrendsCollection, trainerID, yearMonth)
}

func (r *Reader) trend(ctx context.Context, collection, entityID, yearMonth string) (*Trend, error) {
	doc, err := r.store.Get(ctx, collection, TrendDocID(entityID, yearMonth))
	if errors.Is(err, docstore.ErrNotFound) {
		return &Trend{
			YearMonth:      yearMonth,
			DailyResponses: map[string]int64{},
			DailySessions:  map[string]int64{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trend %s/%s: %w", collection, entityID, err)
	}
	var trend Trend
	if err := docstore.Decode(doc, &trend); err != nil {
		return nil, fmt.Errorf("decode trend %s/%s: %w", collection, entityID, err)
	}
	trend.YearMonth = yearMonth
	return &trend, nil
}
