package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "flock/pkg/domain"
)

func operatorRouter(t *testing.T) (chi.Router, *InMemoryOperatorStore) {
	t.Helper()
	store := NewInMemoryOperatorStore()
	router := chi.NewRouter()
	NewHandler(store, slog.New(slog.DiscardHandler)).Register(router)
	return router, store
}

func parkEntry(t *testing.T, store *InMemoryOperatorStore, reason string) OperatorEntry {
	t.Helper()
	entry := OperatorEntry{
		ID:         id.NewMarkID(),
		LocalID:    "7",
		StationID:  id.StationID(uuid.New()),
		MemberID:   id.MemberID(uuid.New()),
		SessionKey: "2024-01-21|sunday_first|",
		Status:     id.StatusPresent,
		Reason:     reason,
		MarkedAt:   time.Date(2024, 1, 21, 9, 40, 0, 0, time.UTC),
		ParkedAt:   time.Date(2024, 1, 21, 10, 15, 0, 0, time.UTC),
	}
	require.NoError(t, store.Park(context.Background(), entry))
	return entry
}

func TestOperatorQueueListing(t *testing.T) {
	router, store := operatorRouter(t)
	entry := parkEntry(t, store, ReasonTokenExpiredOffline)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/operator-queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []operatorEntryResponse `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, entry.ID.String(), resp.Entries[0].ID)
	assert.Equal(t, ReasonTokenExpiredOffline, resp.Entries[0].Reason)
}

func TestOperatorQueueResolve(t *testing.T) {
	router, store := operatorRouter(t)
	entry := parkEntry(t, store, ReasonRetryExhausted)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/sync/operator-queue/"+entry.ID.String()+"/resolve", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOperatorQueueResolveUnknown(t *testing.T) {
	router, _ := operatorRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/sync/operator-queue/"+uuid.NewString()+"/resolve", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/sync/operator-queue/not-a-uuid/resolve", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
