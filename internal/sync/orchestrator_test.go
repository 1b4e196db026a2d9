package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/models"
	"github.com/seopulse/seopulse/internal/provider"
)

type fakeBindings struct {
	site *models.GscSite
	prop *models.Ga4Property
}

func (f *fakeBindings) GscSite(ctx context.Context, projectID int) (*models.GscSite, error) {
	return f.site, nil
}

func (f *fakeBindings) Ga4Property(ctx context.Context, projectID int) (*models.Ga4Property, error) {
	return f.prop, nil
}

// memorySink collects upserted rows, deduplicating on the natural key the
// way the database unique indexes do.
type memorySink struct {
	mu  sync.Mutex
	gsc map[string]models.GscMetric
	ga4 map[string]models.Ga4Metric
}

func newMemorySink() *memorySink {
	return &memorySink{gsc: make(map[string]models.GscMetric), ga4: make(map[string]models.Ga4Metric)}
}

func (s *memorySink) UpsertGscMetrics(ctx context.Context, rows []models.GscMetric) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.gsc[r.Date.Format("2006-01-02")+"|"+r.Page+"|"+r.Query] = r
	}
	return int64(len(rows)), nil
}

func (s *memorySink) UpsertGa4Metrics(ctx context.Context, rows []models.Ga4Metric) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.ga4[r.PropertyID+"|"+r.Date.Format("2006-01-02")] = r
	}
	return int64(len(rows)), nil
}

type memoryRunLog struct {
	mu   sync.Mutex
	runs []*models.SyncRun
}

func (l *memoryRunLog) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *run
	l.runs = append(l.runs, &copied)
	return nil
}

func (l *memoryRunLog) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.runs {
		if r.ID == run.ID {
			copied := *run
			l.runs[i] = &copied
		}
	}
	return nil
}

func (l *memoryRunLog) last() *models.SyncRun {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.runs) == 0 {
		return nil
	}
	return l.runs[len(l.runs)-1]
}

// passValidator hands back credentials untouched
type passValidator struct{}

func (passValidator) EnsureValid(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return cred, nil
}

type failValidator struct{ err error }

func (v failValidator) EnsureValid(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return nil, v.err
}

type fakeGscFetcher struct {
	calls int
	pages [][]provider.GscMetricRow
	err   error
}

func (f *fakeGscFetcher) FetchRange(ctx context.Context, accessToken, siteURL string, from, to time.Time, emit func([]provider.GscMetricRow) error) error {
	f.calls++
	for _, page := range f.pages {
		if err := emit(page); err != nil {
			return err
		}
	}
	return f.err
}

type fakeGa4Fetcher struct {
	calls int
	pages [][]provider.Ga4MetricRow
	err   error
}

func (f *fakeGa4Fetcher) FetchRange(ctx context.Context, accessToken, propertyID string, from, to time.Time, emit func([]provider.Ga4MetricRow) error) error {
	f.calls++
	for _, page := range f.pages {
		if err := emit(page); err != nil {
			return err
		}
	}
	return f.err
}

type testHarness struct {
	orch     *Orchestrator
	bindings *fakeBindings
	creds    *credentials.MemoryStore
	sink     *memorySink
	runs     *memoryRunLog
	gsc      *fakeGscFetcher
	ga4      *fakeGa4Fetcher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		bindings: &fakeBindings{
			site: &models.GscSite{ProjectID: 27, SiteURL: "sc-domain:example.com"},
			prop: &models.Ga4Property{ProjectID: 27, PropertyID: "123456"},
		},
		creds: credentials.NewMemoryStore(),
		sink:  newMemorySink(),
		runs:  &memoryRunLog{},
		gsc:   &fakeGscFetcher{},
		ga4:   &fakeGa4Fetcher{},
	}
	h.creds.Put(context.Background(), &models.Credential{
		ProjectID:   27,
		Provider:    models.ProviderGSC,
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	h.creds.Put(context.Background(), &models.Credential{
		ProjectID:   27,
		Provider:    models.ProviderGA4,
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	h.orch = NewOrchestrator(h.bindings, h.creds, passValidator{}, h.sink, h.runs, h.gsc, h.ga4, 28)
	return h
}

func gscPage(date time.Time, n int) []provider.GscMetricRow {
	page := make([]provider.GscMetricRow, n)
	for i := range page {
		page[i] = provider.GscMetricRow{
			Date:   date,
			Page:   "https://example.com/",
			Query:  "query-" + string(rune('a'+i)),
			Clicks: int64(i + 1),
		}
	}
	return page
}

func TestRunSyncCompletes(t *testing.T) {
	h := newHarness(t)
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.gsc.pages = [][]provider.GscMetricRow{gscPage(day, 3), gscPage(day.AddDate(0, 0, 1), 2)}

	result, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)
	require.EqualValues(t, 5, result.RowsSynced)
	require.Equal(t, 7*24*time.Hour, result.DateEnd.Sub(result.DateStart))

	run := h.runs.last()
	require.Equal(t, models.SyncStatusCompleted, run.Status)
	require.EqualValues(t, 5, run.RowsSynced)
	require.Nil(t, run.ErrorCode)
	require.NotNil(t, run.FinishedAt)
}

func TestRunSyncDefaultDays(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 0)
	require.NoError(t, err)
	require.Equal(t, 28*24*time.Hour, result.DateEnd.Sub(result.DateStart))
}

func TestRunSyncNoResourceBound(t *testing.T) {
	h := newHarness(t)
	h.bindings.site = nil

	_, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoResourceBound))
	require.Equal(t, "no_resource_bound", ErrorCode(err))
	require.Zero(t, h.gsc.calls, "no provider call may happen without a binding")
	require.Nil(t, h.runs.last(), "no run row for a run that never started")
}

func TestRunSyncNoCredential(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.RunSync(context.Background(), 99, models.ProviderGSC, 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoCredential))
	require.Zero(t, h.gsc.calls)
}

func TestRunSyncUnknownProvider(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.RunSync(context.Background(), 27, "bing", 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestRunSyncAhrefsHasNoClient(t *testing.T) {
	h := newHarness(t)

	// Registered for OAuth, but the data client does not exist yet
	_, err := h.orch.RunSync(context.Background(), 27, models.ProviderAhrefs, 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestRunSyncValidatorFailure(t *testing.T) {
	h := newHarness(t)
	sentinel := errors.New("refresh says no")
	h.orch.validator = failValidator{err: sentinel}

	_, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.True(t, errors.Is(err, sentinel))
	require.Zero(t, h.gsc.calls, "an invalid credential must not reach the provider")
}

func TestRunSyncPartialProgress(t *testing.T) {
	h := newHarness(t)
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.gsc.pages = [][]provider.GscMetricRow{gscPage(day, 4)}
	h.gsc.err = &provider.RateLimitError{Message: "quota exceeded"}

	result, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, provider.ErrRateLimited))
	require.NotNil(t, result, "partial progress must be reported alongside the error")
	require.EqualValues(t, 4, result.RowsSynced)

	run := h.runs.last()
	require.Equal(t, models.SyncStatusPartial, run.Status)
	require.NotNil(t, run.ErrorCode)
	require.Equal(t, "rate_limited", *run.ErrorCode)
}

func TestRunSyncFailsWithNoRows(t *testing.T) {
	h := newHarness(t)
	h.gsc.err = provider.ErrProviderAuth

	result, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.Error(t, err)
	require.NotNil(t, result)
	require.Zero(t, result.RowsSynced)

	run := h.runs.last()
	require.Equal(t, models.SyncStatusFailed, run.Status)
	require.Equal(t, "provider_auth", *run.ErrorCode)
}

func TestRunSyncIdempotentRerun(t *testing.T) {
	h := newHarness(t)
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.gsc.pages = [][]provider.GscMetricRow{gscPage(day, 3)}

	_, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.NoError(t, err)
	_, err = h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.NoError(t, err)

	require.Len(t, h.sink.gsc, 3, "re-syncing the same range must not duplicate rows")
}

func TestRunSyncGa4(t *testing.T) {
	h := newHarness(t)
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.ga4.pages = [][]provider.Ga4MetricRow{{
		{Date: day, Sessions: 10, TotalUsers: 8},
		{Date: day.AddDate(0, 0, 1), Sessions: 12, TotalUsers: 9},
	}}

	result, err := h.orch.RunSync(context.Background(), 27, models.ProviderGA4, 7)
	require.NoError(t, err)
	require.EqualValues(t, 2, result.RowsSynced)
	require.Zero(t, h.gsc.calls)
	require.Equal(t, 1, h.ga4.calls)

	// Property ID is stamped from the binding
	for _, row := range h.sink.ga4 {
		require.Equal(t, "123456", row.PropertyID)
		require.Equal(t, 27, row.ProjectID)
	}
}

func TestRunSyncConcurrentSamePair(t *testing.T) {
	h := newHarness(t)

	started := make(chan struct{})
	release := make(chan struct{})
	h.gsc.pages = nil
	slowGsc := &blockingGscFetcher{started: started, release: release}
	h.orch.gsc = slowGsc

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	}()

	<-started
	_, err := h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.True(t, errors.Is(err, ErrSyncInProgress))
	require.Equal(t, "sync_in_progress", ErrorCode(err))

	close(release)
	wg.Wait()

	// The pair is runnable again once the first run finished
	_, err = h.orch.RunSync(context.Background(), 27, models.ProviderGSC, 7)
	require.NoError(t, err)
}

type blockingGscFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingGscFetcher) FetchRange(ctx context.Context, accessToken, siteURL string, from, to time.Time, emit func([]provider.GscMetricRow) error) error {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return nil
}
