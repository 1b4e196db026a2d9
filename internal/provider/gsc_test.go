package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func gscRow(date, page, query string, clicks int) map[string]interface{} {
	return map[string]interface{}{
		"keys":        []string{date, page, query},
		"clicks":      float64(clicks),
		"impressions": float64(clicks * 10),
		"ctr":         0.1,
		"position":    3.4,
	}
}

func newGscTestClient(serverURL string, attempts int) *GscClient {
	c := NewGscClient(5*time.Second, fastPolicy(attempts))
	c.baseURL = serverURL
	return c
}

func TestGscFetchRangeSinglePage(t *testing.T) {
	var gotReq gscQueryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rows": []map[string]interface{}{
				gscRow("2026-02-01", "https://example.com/", "seo tools", 12),
				gscRow("2026-02-01", "https://example.com/pricing", "seo pricing", 3),
			},
		})
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 1)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	var emitted []GscMetricRow
	err := client.FetchRange(context.Background(), "at-1", "https://example.com/", from, to, func(page []GscMetricRow) error {
		emitted = append(emitted, page...)
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, "2026-02-01", gotReq.StartDate)
	require.Equal(t, "2026-02-28", gotReq.EndDate)
	require.Equal(t, []string{"date", "page", "query"}, gotReq.Dimensions)

	require.Len(t, emitted, 2)
	require.Equal(t, "seo tools", emitted[0].Query)
	require.Equal(t, int64(12), emitted[0].Clicks)
	require.Equal(t, int64(120), emitted[0].Impressions)
	require.Equal(t, from, emitted[0].Date)
}

func TestGscFetchRangePaginates(t *testing.T) {
	var startRows []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gscQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		startRows = append(startRows, req.StartRow)

		rows := make([]map[string]interface{}, 0, gscRowLimit)
		if req.StartRow == 0 {
			// Full page signals another page may follow
			for i := 0; i < gscRowLimit; i++ {
				rows = append(rows, gscRow("2026-02-01", fmt.Sprintf("https://example.com/p%d", i), "q", 1))
			}
		} else {
			rows = append(rows, gscRow("2026-02-02", "https://example.com/last", "q", 1))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"rows": rows})
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 1)

	var total int
	err := client.FetchRange(context.Background(), "at", "sc-domain:example.com",
		time.Now().AddDate(0, 0, -7), time.Now(), func(page []GscMetricRow) error {
			total += len(page)
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, []int{0, gscRowLimit}, startRows)
	require.Equal(t, gscRowLimit+1, total)
}

func TestGscFetchRangeRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rows": []map[string]interface{}{gscRow("2026-02-01", "p", "q", 1)},
		})
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 3)

	var total int
	err := client.FetchRange(context.Background(), "at", "site", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []GscMetricRow) error {
			total += len(page)
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, total)
}

func TestGscFetchRangeRateLimitExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 2)

	err := client.FetchRange(context.Background(), "at", "site", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []GscMetricRow) error { return nil })
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRateLimited))
}

func TestGscFetchRangeAuthError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 5)

	err := client.FetchRange(context.Background(), "expired", "site", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []GscMetricRow) error { return nil })
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrProviderAuth))
	require.Equal(t, 1, calls, "auth failures must not be retried")
}

func TestGscQuotaExceededAs403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"errors":[{"reason":"rateLimitExceeded"}]}}`)
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 1)

	err := client.FetchRange(context.Background(), "at", "site", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []GscMetricRow) error { return nil })
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRateLimited), "Google quota 403s must map to rate limiting, not auth")
}

func TestGscEmitErrorStopsFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rows": []map[string]interface{}{gscRow("2026-02-01", "p", "q", 1)},
		})
	}))
	defer server.Close()

	client := newGscTestClient(server.URL, 1)

	sinkErr := errors.New("sink full")
	err := client.FetchRange(context.Background(), "at", "site", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []GscMetricRow) error { return sinkErr })
	require.True(t, errors.Is(err, sinkErr))
}
