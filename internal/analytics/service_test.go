package analytics

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"flock/internal/ledger"
	"flock/internal/member"
	"flock/internal/session"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type AnalyticsSuite struct {
	suite.Suite
	sessions  *session.InMemoryStore
	ledgerSvc *ledger.Service
	directory *member.InMemoryDirectory
	service   *Service
}

func (s *AnalyticsSuite) SetupTest() {
	s.sessions = session.NewInMemory()
	s.directory = member.NewInMemoryDirectory()

	var err error
	s.ledgerSvc, err = ledger.NewService(ledger.NewInMemory(), s.sessions, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)

	s.service, err = NewService(s.ledgerSvc, s.directory)
	s.Require().NoError(err)
}

func TestAnalyticsSuite(t *testing.T) {
	suite.Run(t, new(AnalyticsSuite))
}

// seedSession creates a session on the given day and marks n members
// present (with firstTimers of them flagged) plus absent absentees.
func (s *AnalyticsSuite) seedSession(day time.Time, serviceType id.ServiceType, present, firstTimers, absent int, category member.Category) {
	ctx := context.Background()
	key, err := session.NewKey(day, serviceType, "")
	s.Require().NoError(err)
	sess, err := s.sessions.Resolve(ctx, key)
	s.Require().NoError(err)

	for i := 0; i < present; i++ {
		memberID := id.MemberID(uuid.New())
		s.directory.Add(memberID, "member", category)
		_, err := s.ledgerSvc.Mark(ctx, ledger.MarkInput{
			SessionID:  sess.ID,
			MemberID:   memberID,
			Status:     id.StatusPresent,
			FirstTimer: i < firstTimers,
			MarkedAt:   day.Add(9 * time.Hour),
		})
		s.Require().NoError(err)
	}
	for i := 0; i < absent; i++ {
		memberID := id.MemberID(uuid.New())
		s.directory.Add(memberID, "member", category)
		_, err := s.ledgerSvc.Mark(ctx, ledger.MarkInput{
			SessionID: sess.ID,
			MemberID:  memberID,
			Status:    id.StatusAbsent,
			MarkedAt:  day.Add(9 * time.Hour),
		})
		s.Require().NoError(err)
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func (s *AnalyticsSuite) report(from, to time.Time, groupBy id.GroupBy) *Report {
	report, err := s.service.Report(context.Background(), from, to, groupBy)
	s.Require().NoError(err)
	return report
}

func (s *AnalyticsSuite) TestTrendsOrderedWithGrowth() {
	s.seedSession(day(7), "sunday_first", 10, 2, 0, member.CategoryAdult)
	s.seedSession(day(14), "sunday_first", 15, 1, 0, member.CategoryAdult)
	s.seedSession(day(21), "sunday_first", 12, 0, 0, member.CategoryAdult)

	report := s.report(day(1), day(31), id.GroupByCombined)
	s.Require().Len(report.Trends, 3)

	first := report.Trends[0]
	s.Equal(10, first.PresentCount)
	s.Equal(2, first.FirstTimers)
	s.Require().NotNil(first.GrowthRatePct)
	s.Zero(*first.GrowthRatePct, "first point has no previous, growth is 0")

	s.Require().NotNil(report.Trends[1].GrowthRatePct)
	s.InDelta(50.0, *report.Trends[1].GrowthRatePct, 0.001)
	s.Require().NotNil(report.Trends[2].GrowthRatePct)
	s.InDelta(-20.0, *report.Trends[2].GrowthRatePct, 0.001)

	s.Require().NotNil(report.GrowthRate)
	s.InDelta(20.0, *report.GrowthRate, 0.001, "overall growth compares last to first")
}

func (s *AnalyticsSuite) TestGrowthUndefinedAfterZeroPresent() {
	// Nobody present on the first Sunday; a ratio against zero is
	// undefined and must be omitted, never Infinity or NaN.
	s.seedSession(day(7), "sunday_first", 0, 0, 3, member.CategoryAdult)
	s.seedSession(day(14), "sunday_first", 8, 0, 0, member.CategoryAdult)

	report := s.report(day(1), day(31), id.GroupByCombined)
	s.Require().Len(report.Trends, 2)
	s.Nil(report.Trends[1].GrowthRatePct)
	s.Nil(report.GrowthRate)
}

func (s *AnalyticsSuite) TestGroupByServiceSplitsSameDay() {
	s.seedSession(day(7), "sunday_first", 5, 0, 0, member.CategoryAdult)
	s.seedSession(day(7), "sunday_second", 3, 0, 0, member.CategoryAdult)

	combined := s.report(day(1), day(31), id.GroupByCombined)
	s.Require().Len(combined.Trends, 1)
	s.Equal(8, combined.Trends[0].PresentCount)

	byService := s.report(day(1), day(31), id.GroupByService)
	s.Require().Len(byService.Trends, 2)
	s.Equal(5, byService.Trends[0].PresentCount)
	s.Equal(3, byService.Trends[1].PresentCount)
}

func (s *AnalyticsSuite) TestDemographicsOverPresentOnly() {
	s.seedSession(day(7), "sunday_first", 6, 0, 2, member.CategoryAdult)
	s.seedSession(day(14), "youth_night", 2, 0, 0, member.CategoryYouth)

	report := s.report(day(1), day(31), id.GroupByCombined)
	s.Require().Len(report.Demographics, 2)

	s.Equal("adult", report.Demographics[0].Category)
	s.Equal(6, report.Demographics[0].Count)
	s.InDelta(75.0, report.Demographics[0].Percentage, 0.001)

	s.Equal("youth", report.Demographics[1].Category)
	s.Equal(2, report.Demographics[1].Count)
	s.InDelta(25.0, report.Demographics[1].Percentage, 0.001)
}

func (s *AnalyticsSuite) TestRetentionRate() {
	s.seedSession(day(7), "sunday_first", 3, 0, 1, member.CategoryAdult)

	report := s.report(day(1), day(31), id.GroupByCombined)
	s.InDelta(75.0, report.RetentionRate, 0.001)
}

func (s *AnalyticsSuite) TestEmptyRangeIsZeroNotError() {
	report := s.report(day(1), day(31), id.GroupByCombined)
	s.Empty(report.Trends)
	s.Empty(report.Demographics)
	s.Zero(report.RetentionRate)
	s.Nil(report.GrowthRate)
}

func (s *AnalyticsSuite) TestUnknownGroupByRejected() {
	_, err := s.service.Report(context.Background(), day(1), day(31), "weekly")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
