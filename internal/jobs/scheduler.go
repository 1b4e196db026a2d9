package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/seopulse/seopulse/internal/models"
	syncer "github.com/seopulse/seopulse/internal/sync"
)

// Scheduler manages background jobs
type Scheduler struct {
	cron         *cron.Cron
	db           *gorm.DB
	orchestrator *syncer.Orchestrator
}

// NewScheduler creates a new job scheduler
func NewScheduler(db *gorm.DB, orchestrator *syncer.Orchestrator) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		db:           db,
		orchestrator: orchestrator,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	// Nightly Search Console sync at 4:10 AM
	s.cron.AddFunc("10 4 * * *", func() {
		s.syncAllGsc()
	})

	// Nightly Analytics sync at 4:40 AM
	s.cron.AddFunc("40 4 * * *", func() {
		s.syncAllGa4()
	})

	// Cleanup old sync runs daily at 3:14 AM
	s.cron.AddFunc("14 3 * * *", func() {
		log.Println("Running sync run cleanup job...")
		s.cleanupOldSyncRuns()
	})

	s.cron.Start()
	log.Println("Job scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Job scheduler stopped")
}

// syncAllGsc runs a sync for every project with a Search Console binding.
func (s *Scheduler) syncAllGsc() {
	var sites []models.GscSite
	if err := s.db.Find(&sites).Error; err != nil {
		log.Printf("Scheduler: Failed to load gsc bindings: %v", err)
		return
	}

	log.Printf("Scheduler: Running nightly gsc sync for %d projects", len(sites))
	for _, site := range sites {
		s.runOne(site.ProjectID, models.ProviderGSC)
	}
}

// syncAllGa4 runs a sync for every project with an Analytics binding.
func (s *Scheduler) syncAllGa4() {
	var props []models.Ga4Property
	if err := s.db.Find(&props).Error; err != nil {
		log.Printf("Scheduler: Failed to load ga4 bindings: %v", err)
		return
	}

	log.Printf("Scheduler: Running nightly ga4 sync for %d projects", len(props))
	for _, prop := range props {
		s.runOne(prop.ProjectID, models.ProviderGA4)
	}
}

func (s *Scheduler) runOne(projectID int, provider string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	// days=0 means the orchestrator's default window
	result, err := s.orchestrator.RunSync(ctx, projectID, provider, 0)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			return // a manual run is already fetching this pair
		}
		log.Printf("Scheduler: Sync failed for project %d provider %s: %v", projectID, provider, err)
		return
	}

	log.Printf("Scheduler: Synced project %d provider %s (%d rows)", projectID, provider, result.RowsSynced)
}

// cleanupOldSyncRuns removes sync run records older than 90 days
func (s *Scheduler) cleanupOldSyncRuns() {
	cutoff := time.Now().AddDate(0, 0, -90)

	result := s.db.Where("started_at < ?", cutoff).Delete(&models.SyncRun{})
	if result.Error != nil {
		log.Printf("Failed to cleanup old sync runs: %v", result.Error)
		return
	}

	log.Printf("Cleaned up %d old sync runs", result.RowsAffected)
}
