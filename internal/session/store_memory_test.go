package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) TestResolveIsIdempotent() {
	key, err := NewKey(time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), "sunday_first", "")
	s.Require().NoError(err)

	first, err := s.store.Resolve(context.Background(), key)
	s.Require().NoError(err)

	second, err := s.store.Resolve(context.Background(), key)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	found, err := s.store.FindByID(context.Background(), first.ID)
	s.Require().NoError(err)
	s.Equal(key, found.Key)
}

func (s *SessionStoreSuite) TestResolveDistinguishesKeyTuples() {
	date := time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)
	base, err := NewKey(date, "sunday_first", "")
	s.Require().NoError(err)
	ministry, err := NewKey(date, "sunday_first", "youth")
	s.Require().NoError(err)
	otherType, err := NewKey(date, "sunday_second", "")
	s.Require().NoError(err)

	a, err := s.store.Resolve(context.Background(), base)
	s.Require().NoError(err)
	b, err := s.store.Resolve(context.Background(), ministry)
	s.Require().NoError(err)
	c, err := s.store.Resolve(context.Background(), otherType)
	s.Require().NoError(err)

	s.NotEqual(a.ID, b.ID)
	s.NotEqual(a.ID, c.ID)
	s.NotEqual(b.ID, c.ID)
}

func (s *SessionStoreSuite) TestConcurrentResolveCreatesOneSession() {
	key, err := NewKey(time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), "sunday_first", "")
	s.Require().NoError(err)

	const goroutines = 32
	results := make([]id.SessionID, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			resolved, err := s.store.Resolve(context.Background(), key)
			if err == nil {
				results[slot] = resolved.ID
			}
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		s.Equal(results[0], got, "all resolutions must observe the same session")
	}
}

func (s *SessionStoreSuite) TestFindByIDNotFound() {
	_, err := s.store.FindByID(context.Background(), id.SessionID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestListRangeOrdersAndFilters() {
	ctx := context.Background()
	for _, tc := range []struct {
		day         int
		serviceType id.ServiceType
	}{
		{28, "sunday_first"},
		{21, "sunday_second"},
		{21, "sunday_first"},
		{14, "sunday_first"},
	} {
		key, err := NewKey(time.Date(2024, 1, tc.day, 0, 0, 0, 0, time.UTC), tc.serviceType, "")
		s.Require().NoError(err)
		_, err = s.store.Resolve(ctx, key)
		s.Require().NoError(err)
	}

	listed, err := s.store.ListRange(ctx,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC),
	)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	s.Equal(id.ServiceType("sunday_first"), listed[0].Key.ServiceType)
	s.Equal(id.ServiceType("sunday_second"), listed[1].Key.ServiceType)
	s.Equal(21, listed[0].Key.Date.Day())
	s.Equal(28, listed[2].Key.Date.Day())
}

func TestKeyRoundTrip(t *testing.T) {
	key, err := NewKey(time.Date(2024, 1, 21, 15, 30, 0, 0, time.FixedZone("GST", 4*3600)), "sunday_first", "youth")
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseKey(key.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != key {
		t.Fatalf("round trip mismatch: %v != %v", parsed, key)
	}
}

func TestKeyNormalizesToUTCDay(t *testing.T) {
	gst := time.FixedZone("GST", 4*3600)
	a, err := NewKey(time.Date(2024, 1, 21, 23, 0, 0, 0, time.UTC), "sunday_first", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewKey(time.Date(2024, 1, 22, 1, 0, 0, 0, gst), "sunday_first", "")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected same UTC day key, got %v and %v", a, b)
	}
}

func TestKeyRequiresServiceType(t *testing.T) {
	if _, err := NewKey(time.Now(), "", ""); err == nil {
		t.Fatal("expected error for missing service type")
	}
}
