package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"flock/internal/sync"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// RemoteOperatorStore forwards parked marks to the server's shared
// operator queue over HTTP. Stations only ever park; listing and
// resolving belong to the staff console.
type RemoteOperatorStore struct {
	baseURL string
	client  *http.Client
}

func NewRemoteOperatorStore(baseURL string, httpClient *http.Client) *RemoteOperatorStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RemoteOperatorStore{baseURL: baseURL, client: httpClient}
}

type parkPayload struct {
	LocalID    string    `json:"local_id"`
	StationID  string    `json:"station_id"`
	MemberID   string    `json:"member_id"`
	SessionKey string    `json:"session_key"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
	MarkedAt   time.Time `json:"marked_at"`
}

func (s *RemoteOperatorStore) Park(ctx context.Context, entry sync.OperatorEntry) error {
	body, err := json.Marshal(parkPayload{
		LocalID:    entry.LocalID,
		StationID:  entry.StationID.String(),
		MemberID:   entry.MemberID.String(),
		SessionKey: entry.SessionKey,
		Status:     string(entry.Status),
		Reason:     entry.Reason,
		Detail:     entry.Detail,
		MarkedAt:   entry.MarkedAt,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode park payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/sync/operator-queue", bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build park request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "operator queue unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("operator queue returned status %d", resp.StatusCode))
	}
	return nil
}

// ListOpen is a staff-console operation; stations never call it.
func (s *RemoteOperatorStore) ListOpen(context.Context) ([]*sync.OperatorEntry, error) {
	return nil, dErrors.New(dErrors.CodeUnavailable, "operator listing is a staff console operation")
}

// Resolve is a staff-console operation; stations never call it.
func (s *RemoteOperatorStore) Resolve(context.Context, id.MarkID) error {
	return dErrors.New(dErrors.CodeUnavailable, "operator resolution is a staff console operation")
}
