package models

import "time"

// Sync run statuses.
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusPartial   = "partial" // some rows committed before a terminal error
	SyncStatusFailed    = "failed"
)

// SyncRun records one execution of the sync pipeline for a
// (project, provider) pair. The dashboard's history view and the
// integration status endpoint read these.
type SyncRun struct {
	ID         string     `json:"id" gorm:"primaryKey"` // uuid
	ProjectID  int        `json:"project_id" gorm:"not null;index:idx_sync_runs_pair"`
	Provider   string     `json:"provider" gorm:"not null;index:idx_sync_runs_pair"`
	Status     string     `json:"status" gorm:"not null"`
	RowsSynced int64      `json:"rows_synced"`
	DateStart  time.Time  `json:"date_start" gorm:"type:date"`
	DateEnd    time.Time  `json:"date_end" gorm:"type:date"`
	ErrorCode  *string    `json:"error_code,omitempty"`
	StartedAt  time.Time  `json:"started_at" gorm:"not null;index"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}
