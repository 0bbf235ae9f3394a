package member

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

const defaultClientTimeout = 5 * time.Second

// HTTPDirectory resolves members against the church-management directory
// service over HTTP. A 404 from the directory means the member does not
// exist; any other non-200 is a lookup failure.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory builds a directory client. A nil httpClient gets a
// default with a bounded timeout so a hung directory cannot stall
// check-in indefinitely.
func NewHTTPDirectory(baseURL string, httpClient *http.Client) (*HTTPDirectory, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid directory base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &HTTPDirectory{baseURL: baseURL, client: httpClient}, nil
}

type profileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
}

func (d *HTTPDirectory) Resolve(ctx context.Context, memberID id.MemberID) (Profile, error) {
	endpoint := fmt.Sprintf("%s/members/%s", d.baseURL, memberID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, dErrors.Wrap(err, dErrors.CodeInternal, "directory request build failed")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Profile{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "directory unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Profile{ID: memberID}, nil
	default:
		return Profile{}, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("directory returned status %d", resp.StatusCode))
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, dErrors.Wrap(err, dErrors.CodeInternal, "directory response malformed")
	}

	category := Category(body.Category)
	switch category {
	case CategoryAdult, CategoryYouth, CategoryChild:
	default:
		category = CategoryAdult
	}

	return Profile{
		ID:          memberID,
		DisplayName: body.DisplayName,
		Category:    category,
		Exists:      true,
	}, nil
}
