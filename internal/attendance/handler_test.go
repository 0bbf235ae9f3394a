package attendance

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"flock/internal/ledger"
	"flock/internal/member"
	"flock/internal/session"
	"flock/internal/token"
	"flock/internal/token/replay"
	id "flock/pkg/domain"
	"flock/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router   chi.Router
	tokens   *token.Service
	memberID id.MemberID
	now      time.Time
}

func (s *HandlerSuite) SetupTest() {
	s.now = time.Date(2024, 1, 21, 9, 30, 0, 0, time.UTC)
	s.tokens = token.New(testSecret, 5*time.Minute)

	directory := member.NewInMemoryDirectory()
	s.memberID = id.MemberID(uuid.New())
	directory.Add(s.memberID, "Kofi Boateng", member.CategoryAdult)

	sessions := session.NewInMemory()
	logger := slog.New(slog.DiscardHandler)
	ledgerSvc, err := ledger.NewService(ledger.NewInMemory(), sessions, logger)
	s.Require().NoError(err)
	service, err := NewService(s.tokens, replay.NewInMemory(), directory, sessions, ledgerSvc, logger)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	NewHandler(service, ledgerSvc, logger).Register(s.router)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) postMark(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/attendance/mark", strings.NewReader(body))
	req = testutil.WithFixedTime(req, s.now)
	req = testutil.WithStation(req, uuid.NewString())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) markBody(raw string) string {
	body, err := json.Marshal(map[string]any{
		"token":        raw,
		"service_date": "2024-01-21",
		"service_type": "sunday_first",
		"status":       "present",
	})
	s.Require().NoError(err)
	return string(body)
}

func (s *HandlerSuite) TestMarkReturnsSummary() {
	tok, err := s.tokens.Issue(s.memberID, s.now.Add(-time.Minute))
	s.Require().NoError(err)

	rec := s.postMark(s.markBody(tok.Raw))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp markResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(s.memberID.String(), resp.MemberID)
	s.Equal("Kofi Boateng", resp.DisplayName)
	s.Equal("present", resp.Status)
	s.Equal(ledger.Summary{Total: 1, Present: 1, Rate: 100}, resp.Summary)
	s.NotEmpty(resp.SessionID)
}

func (s *HandlerSuite) TestExpiredTokenIsUnauthorized() {
	tok, err := s.tokens.Issue(s.memberID, s.now.Add(-time.Hour))
	s.Require().NoError(err)

	rec := s.postMark(s.markBody(tok.Raw))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "token_expired")
}

func (s *HandlerSuite) TestReplayedTokenIsUnauthorized() {
	tok, err := s.tokens.Issue(s.memberID, s.now.Add(-time.Minute))
	s.Require().NoError(err)

	s.Require().Equal(http.StatusOK, s.postMark(s.markBody(tok.Raw)).Code)

	rec := s.postMark(s.markBody(tok.Raw))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "token_invalid")
}

func (s *HandlerSuite) TestUnknownMemberIsNotFound() {
	tok, err := s.tokens.Issue(id.MemberID(uuid.New()), s.now.Add(-time.Minute))
	s.Require().NoError(err)

	rec := s.postMark(s.markBody(tok.Raw))
	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(rec.Body.String(), "member_unknown")
}

func (s *HandlerSuite) TestMalformedBodyIsBadRequest() {
	rec := s.postMark("{not json")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestBadServiceDateIsInvalidInput() {
	body, err := json.Marshal(map[string]any{
		"token":        "irrelevant",
		"service_date": "21/01/2024",
		"service_type": "sunday_first",
		"status":       "present",
	})
	s.Require().NoError(err)

	rec := s.postMark(string(body))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestSyncEndpointAcceptsReplays() {
	tok, err := s.tokens.Issue(s.memberID, s.now.Add(-time.Minute))
	s.Require().NoError(err)

	body, err := json.Marshal(map[string]any{
		"token":        tok.Raw,
		"service_date": "2024-01-21",
		"service_type": "sunday_first",
		"status":       "present",
		"marked_at":    s.now.Add(-time.Minute).Format(time.RFC3339),
	})
	s.Require().NoError(err)

	// The same synced payload lands twice; both must succeed.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/attendance/sync", strings.NewReader(string(body)))
		req = testutil.WithFixedTime(req, s.now)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	}
}

func (s *HandlerSuite) TestSyncEndpointRequiresMarkedAt() {
	tok, err := s.tokens.Issue(s.memberID, s.now.Add(-time.Minute))
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/attendance/sync", strings.NewReader(s.markBody(tok.Raw)))
	req = testutil.WithFixedTime(req, s.now)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestGetSessionRoundTrip() {
	tok, err := s.tokens.Issue(s.memberID, s.now.Add(-time.Minute))
	s.Require().NoError(err)

	rec := s.postMark(s.markBody(tok.Raw))
	s.Require().Equal(http.StatusOK, rec.Code)

	var marked markResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &marked))

	req := httptest.NewRequest(http.MethodGet, "/attendance/sessions/"+marked.SessionID, nil)
	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, req)
	s.Require().Equal(http.StatusOK, getRec.Code)

	var resp sessionResponse
	s.Require().NoError(json.Unmarshal(getRec.Body.Bytes(), &resp))
	s.Len(resp.Marks, 1)
	s.Equal(1, resp.Summary.Present)
}

func (s *HandlerSuite) TestGetUnknownSessionIs404() {
	req := httptest.NewRequest(http.MethodGet, "/attendance/sessions/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusNotFound, rec.Code)
}
