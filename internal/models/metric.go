package models

import "time"

// GscMetric is one Search Console fact row. The natural key is
// (project_id, date, page, query); re-syncing an overlapping range
// overwrites the measures in place instead of inserting a duplicate.
type GscMetric struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID   int       `json:"project_id" gorm:"not null;uniqueIndex:idx_gsc_metrics_key"`
	Date        time.Time `json:"date" gorm:"type:date;not null;uniqueIndex:idx_gsc_metrics_key"`
	Page        string    `json:"page" gorm:"not null;uniqueIndex:idx_gsc_metrics_key"`
	Query       string    `json:"query" gorm:"not null;uniqueIndex:idx_gsc_metrics_key"`
	Clicks      int64     `json:"clicks"`
	Impressions int64     `json:"impressions"`
	CTR         float64   `json:"ctr" gorm:"column:ctr"`
	Position    float64   `json:"position"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GscMetric
func (GscMetric) TableName() string {
	return "gsc_metrics"
}

// Ga4Metric is one Analytics 4 fact row, keyed by
// (project_id, property_id, date).
type Ga4Metric struct {
	ID              int       `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID       int       `json:"project_id" gorm:"not null;uniqueIndex:idx_ga4_metrics_key"`
	PropertyID      string    `json:"property_id" gorm:"not null;uniqueIndex:idx_ga4_metrics_key"`
	Date            time.Time `json:"date" gorm:"type:date;not null;uniqueIndex:idx_ga4_metrics_key"`
	Sessions        int64     `json:"sessions"`
	TotalUsers      int64     `json:"total_users"`
	ScreenPageViews int64     `json:"screen_page_views"`
	EngagementRate  float64   `json:"engagement_rate"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for Ga4Metric
func (Ga4Metric) TableName() string {
	return "ga4_metrics"
}
