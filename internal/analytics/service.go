// Package analytics serves the dashboard read side: aggregate and
// trend documents with derived averages, plus the on-demand cache
// rebuild operation.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pulseboard-labs/pulseboard/internal/cache"
	"github.com/pulseboard-labs/pulseboard/internal/core/categories"
)

// Service implements the analytics query layer.
type Service struct {
	reader     *cache.Reader
	rebuilder  *cache.Rebuilder
	categories *categories.Registry
}

func NewService(reader *cache.Reader, rebuilder *cache.Rebuilder, registry *categories.Registry) *Service {
	if reader == nil {
		panic("analytics: reader must not be nil")
	}
	if rebuilder == nil {
		panic("analytics: rebuilder must not be nil")
	}
	if registry == nil {
		panic("analytics: category registry must not be nil")
	}
	return &Service{reader: reader, rebuilder: rebuilder, categories: registry}
}

// CategoryAverage is one category's derived mean for radar charts.
type CategoryAverage struct {
	Value   string          `json:"value"`
	Label   string          `json:"label"`
	Average decimal.Decimal `json:"average"`
	Count   int64           `json:"count"`
}

// AggregateResponse is an aggregate document plus derived values.
type AggregateResponse struct {
	*cache.Aggregate
	AverageRating    decimal.Decimal   `json:"averageRating"`
	CategoryAverages []CategoryAverage `json:"categoryAverages"`
}

func (s *Service) CollegeAnalytics(ctx context.Context, collegeID string) (*AggregateResponse, error) {
	agg, err := s.reader.College(ctx, collegeID)
	if err != nil {
		return nil, err
	}
	return s.respond(agg), nil
}

func (s *Service) TrainerAnalytics(ctx context.Context, trainerID string) (*AggregateResponse, error) {
	agg, err := s.reader.Trainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	return s.respond(agg), nil
}

func (s *Service) CollegeTrend(ctx context.Context, collegeID, yearMonth string) (*cache.Trend, error) {
	return s.reader.CollegeTrend(ctx, collegeID, yearMonth)
}

func (s *Service) TrainerTrend(ctx context.Context, trainerID, yearMonth string) (*cache.Trend, error) {
	return s.reader.TrainerTrend(ctx, trainerID, yearMonth)
}

// Rebuild wipes and replays all aggregates from closed sessions.
func (s *Service) Rebuild(ctx context.Context) (cache.Report, error) {
	report, err := s.rebuilder.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("rebuild aggregates: %w", err)
	}
	return report, nil
}

func (s *Service) respond(agg *cache.Aggregate) *AggregateResponse {
	resp := &AggregateResponse{
		Aggregate:        agg,
		AverageRating:    agg.AverageRating(),
		CategoryAverages: make([]CategoryAverage, 0, len(agg.CategoryData)),
	}

	// Defined categories first in definition order; anything the fold
	// path saw but the config never defined renders after them under
	// its raw name.
	for _, def := range s.categories.All() {
		stat, ok := agg.CategoryData[def.Value]
		if !ok {
			continue
		}
		resp.CategoryAverages = append(resp.CategoryAverages, CategoryAverage{
			Value:   def.Value,
			Label:   def.Label,
			Average: stat.Average(),
			Count:   stat.Count,
		})
	}

	var unknown []CategoryAverage
	for value, stat := range agg.CategoryData {
		if s.categories.Known(value) {
			continue
		}
		unknown = append(unknown, CategoryAverage{
			Value:   value,
			Label:   s.categories.Label(value),
			Average: stat.Average(),
			Count:   stat.Count,
		})
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i].Value < unknown[j].Value })
	resp.CategoryAverages = append(resp.CategoryAverages, unknown...)

	return resp
}
