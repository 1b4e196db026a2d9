package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	gscBaseURL  = "https://www.googleapis.com/webmasters/v3"
	gscRowLimit = 25000
	gscDateFmt  = "2006-01-02"
)

// GscMetricRow is one mapped Search Console fact, not yet bound to a project.
type GscMetricRow struct {
	Date        time.Time
	Page        string
	Query       string
	Clicks      int64
	Impressions int64
	CTR         float64
	Position    float64
}

// GscClient pulls search analytics reports from the Search Console API.
// Pages are mapped and emitted one at a time so a large date range never
// buffers the whole report.
type GscClient struct {
	httpClient *http.Client
	baseURL    string
	retry      RetryPolicy
}

// NewGscClient creates a Search Console client
func NewGscClient(timeout time.Duration, retry RetryPolicy) *GscClient {
	return &GscClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    gscBaseURL,
		retry:      retry,
	}
}

type gscQueryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int      `json:"rowLimit"`
	StartRow   int      `json:"startRow"`
}

type gscQueryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"` // date, page, query
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// FetchRange streams the search analytics report for siteURL over
// [from, to], calling emit once per page. A rate limit that survives the
// retry policy aborts the fetch; pages already emitted stay committed.
func (c *GscClient) FetchRange(ctx context.Context, accessToken, siteURL string, from, to time.Time, emit func([]GscMetricRow) error) error {
	startRow := 0

	for {
		var page gscQueryResponse
		err := c.retry.Do(ctx, func() error {
			return c.queryPage(ctx, accessToken, siteURL, from, to, startRow, &page)
		})
		if err != nil {
			return err
		}

		if len(page.Rows) == 0 {
			return nil
		}

		rows := make([]GscMetricRow, 0, len(page.Rows))
		for _, r := range page.Rows {
			if len(r.Keys) < 3 {
				continue
			}
			date, err := time.Parse(gscDateFmt, r.Keys[0])
			if err != nil {
				return fmt.Errorf("gsc: unparseable date %q: %w", r.Keys[0], err)
			}
			rows = append(rows, GscMetricRow{
				Date:        date,
				Page:        r.Keys[1],
				Query:       r.Keys[2],
				Clicks:      int64(r.Clicks),
				Impressions: int64(r.Impressions),
				CTR:         r.CTR,
				Position:    r.Position,
			})
		}

		if err := emit(rows); err != nil {
			return err
		}

		if len(page.Rows) < gscRowLimit {
			return nil
		}
		startRow += len(page.Rows)
	}
}

func (c *GscClient) queryPage(ctx context.Context, accessToken, siteURL string, from, to time.Time, startRow int, out *gscQueryResponse) error {
	body, err := json.Marshal(gscQueryRequest{
		StartDate:  from.Format(gscDateFmt),
		EndDate:    to.Format(gscDateFmt),
		Dimensions: []string{"date", "page", "query"},
		RowLimit:   gscRowLimit,
		StartRow:   startRow,
	})
	if err != nil {
		return fmt.Errorf("gsc: failed to marshal query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query", c.baseURL, url.PathEscape(siteURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gsc: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{err: fmt.Errorf("gsc: request failed: %w", err)}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "gsc"); err != nil {
		return err
	}

	*out = gscQueryResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gsc: failed to decode response: %w", err)
	}
	return nil
}

// classifyStatus maps a provider HTTP status into the retry taxonomy.
// Shared by the Google report clients, which use the same error shapes.
func classifyStatus(resp *http.Response, name string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    fmt.Sprintf("%s: rate limit exceeded", name),
		}

	case resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		// Google reports quota exhaustion as 403 rateLimitExceeded
		if strings.Contains(string(body), "rateLimitExceeded") || strings.Contains(string(body), "quotaExceeded") {
			return &RateLimitError{Message: fmt.Sprintf("%s: quota exceeded", name)}
		}
		return fmt.Errorf("%w: %s returned status 403", ErrProviderAuth, name)

	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned status 401", ErrProviderAuth, name)

	case resp.StatusCode >= 500:
		return &transientError{err: fmt.Errorf("%s: server error %d", name, resp.StatusCode)}

	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(body))
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
