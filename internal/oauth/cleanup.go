package oauth

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/seopulse/seopulse/internal/models"
)

// StartCleanupJob starts a background job that deletes expired pending
// flows so abandoned consent redirects do not accumulate.
func StartCleanupJob(db *gorm.DB) {
	log.Println("OAuth: Starting cleanup job (runs every 10 minutes)")

	// Run cleanup immediately on start
	go cleanupExpiredFlows(db)

	// Then run every 10 minutes
	ticker := time.NewTicker(10 * time.Minute)
	go func() {
		for range ticker.C {
			cleanupExpiredFlows(db)
		}
	}()
}

func cleanupExpiredFlows(db *gorm.DB) {
	result := db.Where("expires_at < ?", time.Now()).Delete(&models.PendingFlow{})
	if result.Error != nil {
		log.Println("OAuth cleanup: Failed to delete expired pending flows:", result.Error)
	} else if result.RowsAffected > 0 {
		log.Printf("OAuth cleanup: Deleted %d expired pending flows", result.RowsAffected)
	}
}
