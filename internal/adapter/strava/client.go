package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://www.strava.com/api/v3"

var ErrUpstream = errors.New("strava request failed")

// Totals is one aggregate block of the athlete stats endpoint. Distances and
// elevation are meters, times are seconds.
type Totals struct {
	Count         int     `json:"count"`
	Distance      float64 `json:"distance"`
	MovingTime    float64 `json:"moving_time"`
	ElapsedTime   float64 `json:"elapsed_time"`
	ElevationGain float64 `json:"elevation_gain"`
}

type Stats struct {
	RecentRunTotals Totals `json:"recent_run_totals"`
	YTDRunTotals    Totals `json:"ytd_run_totals"`
}

// StatusError carries the upstream status so callers can relay it.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("strava api error: %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstream
}

type Client struct {
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, timeout: 10 * time.Second}
}

// AthleteStats fetches the run totals of athleteID using the caller's access
// token.
func (c *Client) AthleteStats(ctx context.Context, accessToken, athleteID string) (*Stats, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = c.timeout

	endpoint := fmt.Sprintf("%s/athletes/%s/stats", c.baseURL, url.PathEscape(athleteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("%w: decode stats: %w", ErrUpstream, err)
	}
	return &stats, nil
}
