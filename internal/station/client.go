package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"flock/internal/attendance"
	"flock/internal/ledger"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

const defaultClientTimeout = 10 * time.Second

// Client is the station's HTTP link to the attendance server. It
// implements the sync engine's Submitter so a station-embedded engine
// drains its queue straight over the wire.
type Client struct {
	baseURL   string
	stationID id.StationID
	client    *http.Client
}

func NewClient(baseURL string, stationID id.StationID, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{baseURL: baseURL, stationID: stationID, client: httpClient}
}

type markPayload struct {
	Token       string `json:"token"`
	ServiceDate string `json:"service_date"`
	ServiceType string `json:"service_type"`
	MinistryID  string `json:"ministry_id,omitempty"`
	Status      string `json:"status"`
	FirstTimer  bool   `json:"first_timer,omitempty"`
	MarkedAt    string `json:"marked_at,omitempty"`
}

// MarkResult is the server's response to a submitted mark.
type MarkResult struct {
	MarkID      string         `json:"mark_id"`
	SessionID   string         `json:"session_id"`
	MemberID    string         `json:"member_id"`
	DisplayName string         `json:"display_name"`
	Status      string         `json:"status"`
	MarkedAt    time.Time      `json:"marked_at"`
	Summary     ledger.Summary `json:"summary"`
}

// Mark submits through the online path (burns the token's nonce).
func (c *Client) Mark(ctx context.Context, input attendance.CheckInInput) (*MarkResult, error) {
	return c.post(ctx, "/attendance/mark", input)
}

// SubmitSynced replays a queued mark through the sync path.
func (c *Client) SubmitSynced(ctx context.Context, input attendance.CheckInInput) (*attendance.CheckInResult, error) {
	if _, err := c.post(ctx, "/attendance/sync", input); err != nil {
		return nil, err
	}
	return &attendance.CheckInResult{}, nil
}

// SubmitReauthenticated cannot work from a station: the secondary
// identity channel is the staff console, not the scanner. The engine
// only reaches this when a Reauthenticator is wired, which station
// deployments never do.
func (c *Client) SubmitReauthenticated(context.Context, id.MemberID, attendance.CheckInInput) (*attendance.CheckInResult, error) {
	return nil, dErrors.New(dErrors.CodeUnavailable, "re-authentication requires the staff console")
}

func (c *Client) post(ctx context.Context, path string, input attendance.CheckInInput) (*MarkResult, error) {
	payload := markPayload{
		Token:       input.Token,
		ServiceDate: input.ServiceDate.UTC().Format("2006-01-02"),
		ServiceType: string(input.ServiceType),
		MinistryID:  input.MinistryID,
		Status:      string(input.Status),
		FirstTimer:  input.FirstTimer,
	}
	if !input.MarkedAt.IsZero() {
		payload.MarkedAt = input.MarkedAt.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode mark payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build mark request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Station-ID", c.stationID.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "attendance server unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result MarkResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode mark response")
	}
	return &result, nil
}

// decodeError reconstructs the server's coded error from the envelope so
// callers branch on the same codes online and over the wire.
func decodeError(resp *http.Response) error {
	var envelope struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error == "" {
		return dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("attendance server returned status %d", resp.StatusCode))
	}

	message := envelope.ErrorDescription
	if message == "" {
		message = envelope.Error
	}
	return dErrors.New(dErrors.Code(envelope.Error), message)
}
