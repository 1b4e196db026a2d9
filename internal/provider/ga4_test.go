package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ga4Row(date string, sessions, users, views int, engagement string) map[string]interface{} {
	return map[string]interface{}{
		"dimensionValues": []map[string]string{{"value": date}},
		"metricValues": []map[string]string{
			{"value": jsonInt(sessions)},
			{"value": jsonInt(users)},
			{"value": jsonInt(views)},
			{"value": engagement},
		},
	}
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func newGa4TestClient(serverURL string, attempts int) *Ga4Client {
	c := NewGa4Client(5*time.Second, fastPolicy(attempts))
	c.baseURL = serverURL
	return c
}

func TestGa4FetchRangeSinglePage(t *testing.T) {
	var gotReq ga4RunReportRequest
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rows": []map[string]interface{}{
				ga4Row("20260201", 120, 80, 340, "0.61"),
				ga4Row("20260202", 130, 91, 355, "0.58"),
			},
			"rowCount": 2,
		})
	}))
	defer server.Close()

	client := newGa4TestClient(server.URL, 1)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	var emitted []Ga4MetricRow
	err := client.FetchRange(context.Background(), "at-1", "123456", from, to, func(page []Ga4MetricRow) error {
		emitted = append(emitted, page...)
		return nil
	})
	require.NoError(t, err)

	require.True(t, strings.HasSuffix(gotPath, "/properties/123456:runReport"))
	require.Equal(t, "2026-02-01", gotReq.DateRanges[0].StartDate)
	require.Equal(t, "2026-02-28", gotReq.DateRanges[0].EndDate)

	require.Len(t, emitted, 2)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), emitted[0].Date)
	require.Equal(t, int64(120), emitted[0].Sessions)
	require.Equal(t, int64(80), emitted[0].TotalUsers)
	require.Equal(t, int64(340), emitted[0].ScreenPageViews)
	require.InDelta(t, 0.61, emitted[0].EngagementRate, 1e-9)
}

func TestGa4FetchRangePaginates(t *testing.T) {
	var offsets []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ga4RunReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		offsets = append(offsets, req.Offset)

		rows := []map[string]interface{}{}
		if req.Offset == 0 {
			rows = append(rows, ga4Row("20260201", 1, 1, 1, "0.5"))
			rows = append(rows, ga4Row("20260202", 2, 2, 2, "0.5"))
		} else {
			rows = append(rows, ga4Row("20260203", 3, 3, 3, "0.5"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"rows": rows, "rowCount": 3})
	}))
	defer server.Close()

	client := newGa4TestClient(server.URL, 1)

	var total int
	err := client.FetchRange(context.Background(), "at", "p", time.Now().AddDate(0, 0, -3), time.Now(),
		func(page []Ga4MetricRow) error {
			total += len(page)
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, offsets)
	require.Equal(t, 3, total)
}

func TestGa4FetchRangeServerErrorRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rows":     []map[string]interface{}{ga4Row("20260201", 1, 1, 1, "0.5")},
			"rowCount": 1,
		})
	}))
	defer server.Close()

	client := newGa4TestClient(server.URL, 3)

	var total int
	err := client.FetchRange(context.Background(), "at", "p", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []Ga4MetricRow) error {
			total += len(page)
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, total)
}

func TestGa4FetchRangeAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newGa4TestClient(server.URL, 2)

	err := client.FetchRange(context.Background(), "at", "p", time.Now().AddDate(0, 0, -1), time.Now(),
		func(page []Ga4MetricRow) error { return nil })
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrProviderAuth))
}
