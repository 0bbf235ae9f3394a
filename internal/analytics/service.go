package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"flock/internal/ledger"
	"flock/internal/member"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

var tracer = otel.Tracer("flock/internal/analytics")

// Service computes reports over the ledger. Reads are snapshot-consistent
// per query; concurrent marks landing mid-computation simply show up in
// the next report.
type Service struct {
	ledger  *ledger.Service
	members member.Lookup
}

func NewService(ledgerSvc *ledger.Service, members member.Lookup) (*Service, error) {
	if ledgerSvc == nil || members == nil {
		return nil, fmt.Errorf("analytics service requires ledger and member lookup")
	}
	return &Service{ledger: ledgerSvc, members: members}, nil
}

// Report computes trends, demographics, and retention for the range.
func (s *Service) Report(ctx context.Context, from, to time.Time, groupBy id.GroupBy) (*Report, error) {
	ctx, span := tracer.Start(ctx, "analytics.Report")
	defer span.End()

	if !groupBy.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "group_by must be one of service, ministry, combined")
	}

	grouped, err := s.ledger.Query(ctx, from, to, "")
	if err != nil {
		return nil, err
	}

	trends := buildTrends(grouped, groupBy)
	demographics, err := s.demographics(ctx, grouped)
	if err != nil {
		return nil, err
	}

	return &Report{
		Trends:        trends,
		Demographics:  demographics,
		RetentionRate: retentionRate(grouped),
		GrowthRate:    overallGrowth(trends),
	}, nil
}

// trendBucket accumulates one point before ordering.
type trendBucket struct {
	date        time.Time
	serviceType id.ServiceType
	ministryID  string
	present     int
	firstTimers int
}

func buildTrends(grouped []*ledger.SessionMarks, groupBy id.GroupBy) []TrendPoint {
	buckets := make(map[string]*trendBucket)
	order := make([]string, 0)

	for _, sess := range grouped {
		key := bucketKey(sess, groupBy)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &trendBucket{date: sess.Date}
			switch groupBy {
			case id.GroupByService:
				bucket.serviceType = sess.ServiceType
			case id.GroupByMinistry:
				bucket.ministryID = sess.MinistryID
			}
			buckets[key] = bucket
			order = append(order, key)
		}
		for _, mark := range sess.Marks {
			if mark.Status != id.StatusPresent {
				continue
			}
			bucket.present++
			if mark.FirstTimer {
				bucket.firstTimers++
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := buckets[order[i]], buckets[order[j]]
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		return order[i] < order[j]
	})

	points := make([]TrendPoint, 0, len(order))
	for i, key := range order {
		bucket := buckets[key]
		point := TrendPoint{
			Date:         bucket.date,
			ServiceType:  bucket.serviceType,
			MinistryID:   bucket.ministryID,
			PresentCount: bucket.present,
			FirstTimers:  bucket.firstTimers,
		}
		point.GrowthRatePct = growthBetween(previousPresent(points, i), bucket.present, i == 0)
		points = append(points, point)
	}
	return points
}

func bucketKey(sess *ledger.SessionMarks, groupBy id.GroupBy) string {
	day := sess.Date.Format("2006-01-02")
	switch groupBy {
	case id.GroupByService:
		return day + "|" + string(sess.ServiceType)
	case id.GroupByMinistry:
		return day + "|" + sess.MinistryID
	default:
		return day
	}
}

func previousPresent(points []TrendPoint, i int) int {
	if i == 0 {
		return 0
	}
	return points[i-1].PresentCount
}

// growthBetween returns the percent change, 0 for the first point (no
// previous to compare against), and nil when the previous count is zero.
func growthBetween(previous, current int, first bool) *float64 {
	if first {
		zero := 0.0
		return &zero
	}
	if previous == 0 {
		return nil
	}
	rate := (float64(current) - float64(previous)) / float64(previous) * 100
	return &rate
}

// overallGrowth compares the last trend point to the first; nil when the
// comparison is undefined.
func overallGrowth(points []TrendPoint) *float64 {
	if len(points) < 2 {
		return nil
	}
	first := points[0].PresentCount
	if first == 0 {
		return nil
	}
	last := points[len(points)-1].PresentCount
	rate := (float64(last) - float64(first)) / float64(first) * 100
	return &rate
}

func (s *Service) demographics(ctx context.Context, grouped []*ledger.SessionMarks) ([]DemographicSlice, error) {
	counts := make(map[string]int)
	total := 0

	for _, sess := range grouped {
		for _, mark := range sess.Marks {
			if mark.Status != id.StatusPresent {
				continue
			}
			profile, err := s.members.Resolve(ctx, mark.MemberID)
			if err != nil {
				return nil, err
			}
			category := string(profile.Category)
			if !profile.Exists || category == "" {
				category = string(member.CategoryAdult)
			}
			counts[category]++
			total++
		}
	}

	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	slices := make([]DemographicSlice, 0, len(categories))
	for _, category := range categories {
		count := counts[category]
		slices = append(slices, DemographicSlice{
			Category:   category,
			Count:      count,
			Percentage: float64(count) / float64(total) * 100,
		})
	}
	return slices, nil
}

// retentionRate is present marks over all marks in range, 0 when the
// range is empty.
func retentionRate(grouped []*ledger.SessionMarks) float64 {
	present, total := 0, 0
	for _, sess := range grouped {
		for _, mark := range sess.Marks {
			total++
			if mark.Status == id.StatusPresent {
				present++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total) * 100
}
