package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

const maxCachedComments = 5

// Comment list kinds kept on each aggregate.
const (
	commentsHigh   = "high"
	commentsLow    = "low"
	commentsAvg    = "avg"
	commentsFuture = "future"
)

// CachedComment is one ranked free-text answer kept on an aggregate.
type CachedComment struct {
	Text       string          `json:"text"`
	Rating     decimal.Decimal `json:"rating"`
	ResponseID string          `json:"responseId"`
	SessionID  string          `json:"sessionId"`
	Date       string          `json:"date"`
	Course     string          `json:"course,omitempty"`
	TrainerID  string          `json:"trainerId,omitempty"`
}

// Qualitative holds the ranked comment lists for one aggregate.
type Qualitative struct {
	High   []CachedComment `json:"high"`
	Low    []CachedComment `json:"low"`
	Avg    []CachedComment `json:"avg"`
	Future []CachedComment `json:"future"`
}

// mergeQualitative folds the session's notable comments into the
// college and trainer aggregates. Aggregates that do not exist yet are
// skipped; the next numeric fold creates them and the comments arrive
// with a later session.
func (a *Aggregator) mergeQualitative(ctx context.Context, sess *session.Session, cs *session.CompiledStats) error {
	incoming := Qualitative{
		High:   formatComments(sess, cs.TopComments),
		Low:    formatComments(sess, cs.LeastRatedComments),
		Avg:    formatComments(sess, cs.AvgComments),
		Future: formatComments(sess, cs.FutureTopics),
	}
	if len(incoming.High)+len(incoming.Low)+len(incoming.Avg)+len(incoming.Future) == 0 {
		return nil
	}

	if err := a.mergeQualitativeDoc(ctx, CollegeCacheCollection, sess.CollegeID, incoming); err != nil {
		return fmt.Errorf("college %q: %w", sess.CollegeID, err)
	}
	if sess.AssignedTrainerID != "" {
		if err := a.mergeQualitativeDoc(ctx, TrainerCacheCollection, sess.AssignedTrainerID, incoming); err != nil {
			return fmt.Errorf("trainer %q: %w", sess.AssignedTrainerID, err)
		}
	}
	return nil
}

// mergeQualitativeDoc merges under the store's atomic Update so
// concurrent folds for the same entity (rebuild workers, parallel
// closeouts) never overwrite each other's comments.
func (a *Aggregator) mergeQualitativeDoc(ctx context.Context, collection, id string, incoming Qualitative) error {
	err := a.store.Update(ctx, collection, id, func(doc docstore.Document) (docstore.Document, error) {
		var current struct {
			Qualitative Qualitative `json:"qualitative"`
		}
		if err := docstore.Decode(doc, &current); err != nil {
			return nil, err
		}

		doc["qualitative"] = Qualitative{
			High:   mergeComments(current.Qualitative.High, incoming.High, commentsHigh),
			Low:    mergeComments(current.Qualitative.Low, incoming.Low, commentsLow),
			Avg:    mergeComments(current.Qualitative.Avg, incoming.Avg, commentsAvg),
			Future: mergeComments(current.Qualitative.Future, incoming.Future, commentsFuture),
		}
		return doc, nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}

func formatComments(sess *session.Session, comments []session.Comment) []CachedComment {
	out := make([]CachedComment, 0, len(comments))
	for _, c := range comments {
		if c.Text == "" {
			continue
		}
		out = append(out, CachedComment{
			Text:       c.Text,
			Rating:     c.AvgRating,
			ResponseID: c.ResponseID,
			SessionID:  sess.ID,
			Date:       sess.SessionDate,
			Course:     sess.Course,
			TrainerID:  sess.AssignedTrainerID,
		})
	}
	return out
}

// mergeComments combines, dedups by responseID, ranks by list kind and
// keeps the top entries.
func mergeComments(existing, incoming []CachedComment, kind string) []CachedComment {
	combined := make([]CachedComment, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, c := range append(append([]CachedComment{}, existing...), incoming...) {
		if c.ResponseID != "" && seen[c.ResponseID] {
			continue
		}
		seen[c.ResponseID] = true
		combined = append(combined, c)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		switch kind {
		case commentsHigh:
			if !a.Rating.Equal(b.Rating) {
				return a.Rating.GreaterThan(b.Rating)
			}
		case commentsLow:
			if !a.Rating.Equal(b.Rating) {
				return a.Rating.LessThan(b.Rating)
			}
		}
		return a.Date > b.Date
	})

	if len(combined) > maxCachedComments {
		combined = combined[:maxCachedComments]
	}
	return combined
}
