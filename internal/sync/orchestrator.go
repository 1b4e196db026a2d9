package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/metrics"
	"github.com/seopulse/seopulse/internal/models"
	"github.com/seopulse/seopulse/internal/provider"
)

// BindingStore resolves which remote resource a project syncs.
type BindingStore interface {
	GscSite(ctx context.Context, projectID int) (*models.GscSite, error)
	Ga4Property(ctx context.Context, projectID int) (*models.Ga4Property, error)
}

// MetricSink commits metric rows idempotently on their natural key.
type MetricSink interface {
	UpsertGscMetrics(ctx context.Context, rows []models.GscMetric) (int64, error)
	UpsertGa4Metrics(ctx context.Context, rows []models.Ga4Metric) (int64, error)
}

// RunLog records sync run lifecycle.
type RunLog interface {
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
}

// CredentialValidator hands out call-time-valid credentials.
type CredentialValidator interface {
	EnsureValid(ctx context.Context, cred *models.Credential) (*models.Credential, error)
}

// GscFetcher streams Search Console report pages.
type GscFetcher interface {
	FetchRange(ctx context.Context, accessToken, siteURL string, from, to time.Time, emit func([]provider.GscMetricRow) error) error
}

// Ga4Fetcher streams Analytics 4 report pages.
type Ga4Fetcher interface {
	FetchRange(ctx context.Context, accessToken, propertyID string, from, to time.Time, emit func([]provider.Ga4MetricRow) error) error
}

// Broadcaster pushes sync lifecycle events to connected dashboards.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Notifier alerts configured channels about terminal sync failures.
type Notifier interface {
	NotifySyncFailed(ctx context.Context, projectID int, providerName, errorCode string, rowsSynced int64)
	NotifyReauthRequired(ctx context.Context, projectID int, providerName string)
}

// Result is the outcome of one sync run. RowsSynced counts rows committed
// even when the run ends in an error, so partial progress is observable.
type Result struct {
	RunID      string    `json:"run_id"`
	RowsSynced int64     `json:"rows_synced"`
	DateStart  time.Time `json:"date_start"`
	DateEnd    time.Time `json:"date_end"`
}

// Orchestrator drives sync runs. All date-range math lives here: callers
// pass a day count, never raw dates.
type Orchestrator struct {
	bindings  BindingStore
	creds     credentials.Store
	validator CredentialValidator
	sink      MetricSink
	runs      RunLog
	gsc       GscFetcher
	ga4       Ga4Fetcher

	hub      Broadcaster // optional
	notifier Notifier    // optional

	defaultDays int
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator wires a sync orchestrator
func NewOrchestrator(bindings BindingStore, creds credentials.Store, validator CredentialValidator, sink MetricSink, runs RunLog, gsc GscFetcher, ga4 Ga4Fetcher, defaultDays int) *Orchestrator {
	return &Orchestrator{
		bindings:    bindings,
		creds:       creds,
		validator:   validator,
		sink:        sink,
		runs:        runs,
		gsc:         gsc,
		ga4:         ga4,
		defaultDays: defaultDays,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// SetBroadcaster attaches the websocket hub for live run events.
func (o *Orchestrator) SetBroadcaster(hub Broadcaster) { o.hub = hub }

// SetNotifier attaches the failure notification dispatcher.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// RunSync executes one sync for a (project, provider) pair over the last
// `days` days. It resolves the resource binding, validates the
// credential, streams report pages into the upsert layer and records the
// run. A non-nil Result accompanies errors that occur after rows were
// committed.
func (o *Orchestrator) RunSync(ctx context.Context, projectID int, providerName string, days int) (*Result, error) {
	if days <= 0 {
		days = o.defaultDays
	}

	lock, ok := o.tryLock(projectID, providerName)
	if !ok {
		return nil, fmt.Errorf("%w: project %d provider %s", ErrSyncInProgress, projectID, providerName)
	}
	defer lock.Unlock()

	end := o.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)

	result := &Result{DateStart: start, DateEnd: end}

	var fetch func(ctx context.Context, cred *models.Credential) error
	switch providerName {
	case models.ProviderGSC:
		site, err := o.bindings.GscSite(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve gsc binding: %w", err)
		}
		if site == nil {
			return nil, fmt.Errorf("%w: project %d provider %s", ErrNoResourceBound, projectID, providerName)
		}
		fetch = func(ctx context.Context, cred *models.Credential) error {
			return o.gsc.FetchRange(ctx, cred.AccessToken, site.SiteURL, start, end, func(page []provider.GscMetricRow) error {
				rows := make([]models.GscMetric, len(page))
				for i, r := range page {
					rows[i] = models.GscMetric{
						ProjectID:   projectID,
						Date:        r.Date,
						Page:        r.Page,
						Query:       r.Query,
						Clicks:      r.Clicks,
						Impressions: r.Impressions,
						CTR:         r.CTR,
						Position:    r.Position,
					}
				}
				n, err := o.sink.UpsertGscMetrics(ctx, rows)
				result.RowsSynced += n
				return err
			})
		}

	case models.ProviderGA4:
		prop, err := o.bindings.Ga4Property(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve ga4 binding: %w", err)
		}
		if prop == nil {
			return nil, fmt.Errorf("%w: project %d provider %s", ErrNoResourceBound, projectID, providerName)
		}
		fetch = func(ctx context.Context, cred *models.Credential) error {
			return o.ga4.FetchRange(ctx, cred.AccessToken, prop.PropertyID, start, end, func(page []provider.Ga4MetricRow) error {
				rows := make([]models.Ga4Metric, len(page))
				for i, r := range page {
					rows[i] = models.Ga4Metric{
						ProjectID:       projectID,
						PropertyID:      prop.PropertyID,
						Date:            r.Date,
						Sessions:        r.Sessions,
						TotalUsers:      r.TotalUsers,
						ScreenPageViews: r.ScreenPageViews,
						EngagementRate:  r.EngagementRate,
					}
				}
				n, err := o.sink.UpsertGa4Metrics(ctx, rows)
				result.RowsSynced += n
				return err
			})
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	cred, err := o.creds.Get(ctx, projectID, providerName)
	if err != nil {
		if err == credentials.ErrNotFound {
			return nil, fmt.Errorf("%w: project %d provider %s", ErrNoCredential, projectID, providerName)
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	cred, err = o.validator.EnsureValid(ctx, cred)
	if err != nil {
		o.reportFailure(ctx, projectID, providerName, err, 0)
		return nil, err
	}

	run := &models.SyncRun{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Provider:  providerName,
		Status:    models.SyncStatusRunning,
		DateStart: start,
		DateEnd:   end,
		StartedAt: o.now().UTC(),
	}
	result.RunID = run.ID

	if err := o.runs.CreateSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}
	o.broadcast("sync_started", run)

	fetchErr := fetch(ctx, cred)

	now := o.now().UTC()
	run.FinishedAt = &now
	run.RowsSynced = result.RowsSynced

	if fetchErr != nil {
		code := ErrorCode(fetchErr)
		run.ErrorCode = &code
		if result.RowsSynced > 0 {
			run.Status = models.SyncStatusPartial
		} else {
			run.Status = models.SyncStatusFailed
		}
	} else {
		run.Status = models.SyncStatusCompleted
	}

	if err := o.runs.FinishSyncRun(ctx, run); err != nil {
		log.Printf("Sync: Failed to finalize run %s: %v", run.ID, err)
	}

	metrics.SyncRuns.WithLabelValues(providerName, run.Status).Inc()
	metrics.RowsUpserted.WithLabelValues(providerName).Add(float64(result.RowsSynced))
	metrics.SyncDuration.WithLabelValues(providerName).Observe(now.Sub(run.StartedAt).Seconds())

	if fetchErr != nil {
		o.broadcast("sync_failed", run)
		o.reportFailure(ctx, projectID, providerName, fetchErr, result.RowsSynced)
		return result, fetchErr
	}

	log.Printf("Sync: Completed run %s for project %d provider %s (%d rows)", run.ID, projectID, providerName, result.RowsSynced)
	o.broadcast("sync_completed", run)
	return result, nil
}

// tryLock takes the advisory per-pair lock without blocking. Idempotent
// upserts make concurrent same-pair runs safe; the lock only avoids
// burning provider quota on redundant fetches.
func (o *Orchestrator) tryLock(projectID int, providerName string) (*sync.Mutex, bool) {
	key := fmt.Sprintf("%d/%s", projectID, providerName)

	o.mu.Lock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	o.mu.Unlock()

	if !lock.TryLock() {
		return nil, false
	}
	return lock, true
}

func (o *Orchestrator) broadcast(event string, run *models.SyncRun) {
	if o.hub == nil {
		return
	}
	if err := o.hub.Broadcast(event, run); err != nil {
		log.Printf("Sync: Failed to broadcast %s: %v", event, err)
	}
}

func (o *Orchestrator) reportFailure(ctx context.Context, projectID int, providerName string, err error, rows int64) {
	metrics.ProviderErrors.WithLabelValues(providerName, ErrorCode(err)).Inc()
	if o.notifier == nil {
		return
	}
	if ReauthRequired(err) {
		o.notifier.NotifyReauthRequired(ctx, projectID, providerName)
		return
	}
	o.notifier.NotifySyncFailed(ctx, projectID, providerName, ErrorCode(err), rows)
}
