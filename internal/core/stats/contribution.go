// Package stats derives the additive contribution of one closed session
// from its compiled statistics. Everything here is pure: the increment
// adapter in internal/cache turns a Contribution into store writes, so
// the accumulation arithmetic is testable without a database.
package stats

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pulseboard-labs/pulseboard/internal/core/categories"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

const defaultDurationMinutes = 60

var minutesPerHour = decimal.NewFromInt(60)

// CategoryDelta is the additive contribution to one category's running
// mean: Sum/Count across all folded sessions yields the aggregate mean.
type CategoryDelta struct {
	Sum   decimal.Decimal
	Count int64
}

// Contribution is everything one session adds to an aggregate. All
// fields are commutative sums, so contributions may be folded in any
// order and interleaving is always safe.
type Contribution struct {
	Sessions     int64
	Responses    int64
	RatingsCount int64
	RatingSum    decimal.Decimal
	Hours        decimal.Decimal

	// RatingDistribution maps rating value ("1".."5") to count.
	RatingDistribution map[string]int64

	Categories map[string]CategoryDelta
	Topics     map[string]int64
}

// FromStats computes a session's contribution from its compiled stats.
// durationMinutes <= 0 folds as the 60-minute default.
func FromStats(cs session.CompiledStats, durationMinutes int) Contribution {
	c := Contribution{
		Sessions:           1,
		Responses:          cs.TotalResponses,
		RatingSum:          decimal.Zero,
		RatingDistribution: make(map[string]int64, len(cs.RatingDistribution)),
		Categories:         make(map[string]CategoryDelta, len(cs.CategoryAverages)),
		Topics:             make(map[string]int64, len(cs.TopicsLearned)),
	}

	for rating, count := range cs.RatingDistribution {
		value, err := strconv.ParseInt(rating, 10, 64)
		if err != nil {
			continue
		}
		c.RatingsCount += count
		c.RatingSum = c.RatingSum.Add(decimal.NewFromInt(value).Mul(decimal.NewFromInt(count)))
		c.RatingDistribution[rating] = count
	}

	for cat, avg := range cs.CategoryAverages {
		count := cs.TotalResponses
		if actual, ok := cs.CategoryCounts[cat]; ok && actual > 0 {
			count = actual
		}
		// Uncategorized questions fold under the default category, so
		// merge rather than assign in case it also appears explicitly.
		if strings.TrimSpace(cat) == "" {
			cat = categories.DefaultCategory
		}
		prev := c.Categories[cat]
		c.Categories[cat] = CategoryDelta{
			Sum:   prev.Sum.Add(avg.Mul(decimal.NewFromInt(count))),
			Count: prev.Count + count,
		}
	}

	for _, topic := range cs.TopicsLearned {
		if topic.Name == "" {
			continue
		}
		c.Topics[topic.Name] += topic.Count
	}

	if durationMinutes <= 0 {
		durationMinutes = defaultDurationMinutes
	}
	c.Hours = decimal.NewFromInt(int64(durationMinutes)).Div(minutesPerHour)

	return c
}
