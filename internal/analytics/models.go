// Package analytics derives reporting metrics from the attendance ledger.
// Every operation is a pure read; the aggregator never writes back.
package analytics

import (
	"time"

	id "flock/pkg/domain"
)

// TrendPoint is one entry in the ordered trend sequence. GrowthRatePct is
// nil when the previous point had zero present attendees: the ratio is
// undefined there and the wire form omits it rather than inventing an
// Infinity.
type TrendPoint struct {
	Date          time.Time      `json:"date"`
	ServiceType   id.ServiceType `json:"service_type,omitempty"`
	MinistryID    string         `json:"ministry_id,omitempty"`
	PresentCount  int            `json:"present_count"`
	GrowthRatePct *float64       `json:"growth_rate_pct,omitempty"`
	FirstTimers   int            `json:"first_timer_count"`
}

// DemographicSlice is one category's share of present attendees.
type DemographicSlice struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Report is the full analytics response for a date range.
type Report struct {
	Trends        []TrendPoint       `json:"trends"`
	Demographics  []DemographicSlice `json:"demographics"`
	RetentionRate float64            `json:"retention_rate"`
	GrowthRate    *float64           `json:"growth_rate,omitempty"`
}
