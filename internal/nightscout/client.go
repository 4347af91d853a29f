// Package nightscout provides a client for interacting with the Nightscout API
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Required for Nightscout API secret hashing (legacy API requirement)
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrcode/glucose-insights/internal/ingest"
	"github.com/mrcode/glucose-insights/internal/models"
)

const (
	// Upper bound for a CGM reporting every 2.5 minutes
	entriesPerHour = 24
	maxTreatments  = 1000
)

// Client handles communication with the Nightscout API
type Client struct {
	baseURL    string
	apiSecret  string
	apiToken   string
	useToken   bool
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Nightscout client
func NewClient(baseURL, apiSecret, apiToken string, useToken bool) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		apiToken:  apiToken,
		useToken:  useToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// hashSecret generates SHA1 hash of the API secret
// Note: SHA1 is required for Nightscout API compatibility
func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // Required for Nightscout API
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

// buildRequest creates an HTTP request with proper authentication
func (c *Client) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	// Add authentication
	if c.useToken && c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	} else if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}

	return req, nil
}

// get executes a GET request and returns the response body
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := c.buildRequest(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// GetStatus retrieves the Nightscout server status
func (c *Client) GetStatus(ctx context.Context) (*models.ServerStatus, error) {
	body, err := c.get(ctx, "/api/v1/status", nil)
	if err != nil {
		return nil, err
	}

	var status models.ServerStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}

	return &status, nil
}

// GetCurrentEntry retrieves the most recent glucose entry
func (c *Client) GetCurrentEntry(ctx context.Context) (*models.GlucoseEntry, error) {
	params := url.Values{}
	params.Set("count", "1")

	body, err := c.get(ctx, "/api/v1/entries/current", params)
	if err != nil {
		return nil, err
	}

	// Current endpoint returns a single object or array
	var entry models.GlucoseEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		var entries []models.GlucoseEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("parsing entry: %w", err)
		}
		if len(entries) > 0 {
			return &entries[0], nil
		}
		return nil, fmt.Errorf("no entries returned")
	}

	return &entry, nil
}

func rangeParams(from, to time.Time, count int) url.Values {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("find[date][$gte]", fmt.Sprintf("%d", from.UnixMilli()))
	}
	if !to.IsZero() {
		params.Set("find[date][$lte]", fmt.Sprintf("%d", to.UnixMilli()))
	}
	if count > 0 {
		params.Set("count", fmt.Sprintf("%d", count))
	}
	return params
}

// GetTreatments retrieves insulin and carb treatments for a time range
func (c *Client) GetTreatments(ctx context.Context, from, to time.Time) (ingest.TreatmentResult, error) {
	params := url.Values{}
	params.Set("count", fmt.Sprintf("%d", maxTreatments))
	if !from.IsZero() {
		params.Set("find[created_at][$gte]", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		params.Set("find[created_at][$lte]", to.UTC().Format(time.RFC3339))
	}

	body, err := c.get(ctx, "/api/v1/treatments", params)
	if err != nil {
		return ingest.TreatmentResult{}, err
	}
	return ingest.ParseNightscoutTreatments(body)
}

// TestConnection tests if the connection to Nightscout works
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetStatus(ctx)
	return err
}

// FetchResult is the validated data of one fetch
type FetchResult struct {
	Glucose  models.Series
	Insulin  models.Series
	Rejected ingest.Errors
}

// FetchSeries retrieves the glucose and insulin series of the last N hours.
// Malformed records are reported in Rejected instead of failing the fetch.
func (c *Client) FetchSeries(ctx context.Context, hours int) (*FetchResult, error) {
	from := c.now().Add(-time.Duration(hours) * time.Hour)

	// Nightscout returns only 10 entries unless a count is given
	body, err := c.get(ctx, "/api/v1/entries/sgv", rangeParams(from, time.Time{}, hours*entriesPerHour))
	if err != nil {
		return nil, fmt.Errorf("fetching entries: %w", err)
	}
	entries, err := ingest.ParseNightscoutEntries(body)
	if err != nil {
		return nil, err
	}

	treatments, err := c.GetTreatments(ctx, from, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("fetching treatments: %w", err)
	}

	rejected := make(ingest.Errors, 0, len(entries.Errors)+len(treatments.Errors))
	rejected = append(rejected, entries.Errors...)
	rejected = append(rejected, treatments.Errors...)

	return &FetchResult{
		Glucose:  models.Series{Metric: models.MetricGlucose, Readings: models.SortReadings(entries.Readings)},
		Insulin:  models.Series{Metric: models.MetricInsulin, Readings: models.SortReadings(treatments.Insulin)},
		Rejected: rejected,
	}, nil
}
