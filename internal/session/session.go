package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Session status values. Only inactive (closed) sessions carry
// compiled stats and contribute to analytics aggregates.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Session is one feedback-collection instance for a trainer at a
// college. The analytics core reads sessions and never mutates them;
// the session-management subsystem owns the collection.
type Session struct {
	ID                string `json:"id"`
	CollegeID         string `json:"collegeId"`
	AssignedTrainerID string `json:"assignedTrainerId,omitempty"`

	Course string `json:"course,omitempty"`
	Year   string `json:"year,omitempty"`
	Batch  string `json:"batch,omitempty"`
	Domain string `json:"domain,omitempty"`

	// SessionDate is an ISO date or RFC 3339 timestamp from the
	// scheduling subsystem. Kept verbatim; parsing happens at fold time.
	SessionDate string `json:"sessionDate,omitempty"`

	// DurationMinutes is the scheduled length; 0 means unreported
	// and folds as the 60-minute default.
	DurationMinutes int `json:"sessionDuration,omitempty"`

	Status string `json:"status"`

	// CompiledStats is present only once the session is inactive and
	// immutable from then on.
	CompiledStats *CompiledStats `json:"compiledStats,omitempty"`
}

// CompiledStats are the final statistics compiled when a session closes.
type CompiledStats struct {
	TotalResponses int64 `json:"totalResponses"`

	// RatingDistribution maps rating value ("1".."5") to count.
	RatingDistribution map[string]int64 `json:"ratingDistribution,omitempty"`

	// CategoryAverages maps category name to mean rating in [1,5].
	CategoryAverages map[string]decimal.Decimal `json:"categoryAverages,omitempty"`

	// CategoryCounts optionally carries the true number of answers per
	// category. When absent, TotalResponses stands in as an
	// approximation for per-category counts.
	CategoryCounts map[string]int64 `json:"categoryCounts,omitempty"`

	TopicsLearned []TopicCount `json:"topicsLearned,omitempty"`

	TopComments        []Comment `json:"topComments,omitempty"`
	LeastRatedComments []Comment `json:"leastRatedComments,omitempty"`
	AvgComments        []Comment `json:"avgComments,omitempty"`
	FutureTopics       []Comment `json:"futureTopics,omitempty"`
}

// TopicCount is one topic students reported learning, with how many
// responses mentioned it.
type TopicCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Comment is one free-text answer kept for qualitative insight.
type Comment struct {
	Text       string          `json:"text"`
	ResponseID string          `json:"responseId"`
	AvgRating  decimal.Decimal `json:"avgRating"`
}

// Validate ensures a session has the attributes the fold path depends on.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.CollegeID == "" {
		return fmt.Errorf("collegeId is required")
	}
	if s.Status != StatusActive && s.Status != StatusInactive {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	return nil
}

// Date parses SessionDate, accepting a bare date or a full timestamp.
// A missing or unparseable date falls back to now, matching how trend
// records were bucketed before dates were mandatory.
func (s *Session) Date(now func() time.Time) time.Time {
	if s.SessionDate == "" {
		return now()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s.SessionDate); err == nil {
			return t
		}
	}
	return now()
}
