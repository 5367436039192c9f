package cache

import (
	"fmt"
	"time"
)

// Aggregate and trend collections. The analytics core is the only
// writer; dashboards read them.
const (
	CollegeCacheCollection  = "college_cache"
	TrainerCacheCollection  = "trainer_cache"
	CollegeTrendsCollection = "college_trends"
	TrainerTrendsCollection = "trainer_trends"

	// LedgerCollection records which sessions have been folded so a
	// repeated Apply for the same session is a no-op instead of a
	// double count.
	LedgerCollection = "cache_ledger"
)

// Fallbacks for sessions scheduled before the academic hierarchy was
// mandatory.
const (
	defaultCourse = "Unknown"
	defaultYear   = "1"
	defaultBatch  = "A"
)

// YearMonth renders the trend bucket for a date, e.g. "2026-02".
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// DayOfMonth renders the zero-padded day key, e.g. "03".
func DayOfMonth(t time.Time) string {
	return t.Format("02")
}

// TrendDocID addresses one (entity, year-month) trend record. Entity
// ids never contain ':' so the composite is unambiguous.
func TrendDocID(entityID, yearMonth string) string {
	return fmt.Sprintf("%s:%s", entityID, yearMonth)
}
