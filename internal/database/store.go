package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seopulse/seopulse/internal/models"
)

// Store exposes the storage operations the sync pipeline needs: resource
// binding lookups, natural-key metric upserts and the sync-run log.
// Lookups return (nil, nil) when no row exists.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store backed by gorm
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GscSite returns the Search Console binding for a project, if any.
func (s *Store) GscSite(ctx context.Context, projectID int) (*models.GscSite, error) {
	var site models.GscSite
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&site).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// Ga4Property returns the Analytics 4 binding for a project, if any.
func (s *Store) Ga4Property(ctx context.Context, projectID int) (*models.Ga4Property, error) {
	var prop models.Ga4Property
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&prop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prop, nil
}

// SaveGscSite inserts or replaces the Search Console binding for a project.
func (s *Store) SaveGscSite(ctx context.Context, site *models.GscSite) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"site_url", "permission_level"}),
	}).Create(site).Error
}

// SaveGa4Property inserts or replaces the Analytics 4 binding for a project.
func (s *Store) SaveGa4Property(ctx context.Context, prop *models.Ga4Property) error {
	if prop.CreatedAt.IsZero() {
		prop.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"property_id", "property_name"}),
	}).Create(prop).Error
}

// UpsertGscMetrics writes Search Console rows keyed by
// (project_id, date, page, query). Existing rows have their measure
// columns overwritten, so repeated syncs of overlapping ranges never
// accumulate duplicates.
func (s *Store) UpsertGscMetrics(ctx context.Context, rows []models.GscMetric) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = now
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_id"}, {Name: "date"}, {Name: "page"}, {Name: "query"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"clicks", "impressions", "ctr", "position", "updated_at"}),
	}).Create(&rows)

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpsertGa4Metrics writes Analytics rows keyed by
// (project_id, property_id, date).
func (s *Store) UpsertGa4Metrics(ctx context.Context, rows []models.Ga4Metric) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = now
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_id"}, {Name: "property_id"}, {Name: "date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"sessions", "total_users", "screen_page_views", "engagement_rate", "updated_at"}),
	}).Create(&rows)

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateSyncRun records the start of a sync run.
func (s *Store) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// FinishSyncRun records the outcome of a sync run.
func (s *Store) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	return s.db.WithContext(ctx).Save(run).Error
}

// LatestSyncRun returns the most recent run for a (project, provider)
// pair, if any.
func (s *Store) LatestSyncRun(ctx context.Context, projectID int, provider string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND provider = ?", projectID, provider).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreatePendingFlow stores the record backing an in-flight consent redirect.
func (s *Store) CreatePendingFlow(ctx context.Context, flow *models.PendingFlow) error {
	return s.db.WithContext(ctx).Create(flow).Error
}

// ConsumePendingFlow atomically fetches and deletes the pending flow for a
// nonce. Returns (nil, nil) when the nonce is unknown or expired, which
// the callback treats as a forged or replayed state.
func (s *Store) ConsumePendingFlow(ctx context.Context, nonce string) (*models.PendingFlow, error) {
	var flow models.PendingFlow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("nonce = ? AND expires_at > ?", nonce, time.Now()).First(&flow).Error; err != nil {
			return err
		}
		return tx.Delete(&flow).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flow, nil
}
