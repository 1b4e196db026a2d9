package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Dispatcher handles sending notifications
type Dispatcher struct {
	db *gorm.DB
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{db: db}
}

// NotifySyncFailed alerts the configured channels that a sync run failed.
func (d *Dispatcher) NotifySyncFailed(ctx context.Context, projectID int, provider, errorCode string, rowsSynced int64) {
	event := "sync_failed"
	title := "Sync run FAILED"
	if rowsSynced > 0 {
		event = "sync_partial"
		title = "Sync run partially completed"
	}

	d.send(ctx, &Message{
		Title:      title,
		Body:       fmt.Sprintf("The %s sync for project %d did not complete.", provider, projectID),
		ProjectID:  projectID,
		Provider:   provider,
		Event:      event,
		ErrorCode:  errorCode,
		RowsSynced: rowsSynced,
		Time:       time.Now().Format(time.RFC3339),
	})
}

// NotifyReauthRequired alerts that a project's credential needs a fresh
// authorization, surfaced distinctly so the recipient knows to re-consent
// rather than to look for a data problem.
func (d *Dispatcher) NotifyReauthRequired(ctx context.Context, projectID int, provider string) {
	d.send(ctx, &Message{
		Title:     "Integration needs re-authorization",
		Body:      fmt.Sprintf("The stored %s credential for project %d was rejected. Reconnect the integration from the dashboard.", provider, projectID),
		ProjectID: projectID,
		Provider:  provider,
		Event:     "reauth_required",
		Time:      time.Now().Format(time.RFC3339),
	})
}

// send delivers a message to every default active channel concurrently.
func (d *Dispatcher) send(ctx context.Context, msg *Message) {
	notifications, err := d.getDefaultNotifications()
	if err != nil {
		log.Printf("Notification: Failed to load channels: %v", err)
		return
	}

	for _, notif := range notifications {
		go func(n *Notification) {
			if err := d.sendNotification(ctx, n, msg); err != nil {
				log.Printf("Failed to send notification via %s (%s): %v", n.Type, n.Name, err)
			}
		}(notif)
	}
}

// sendNotification sends a notification using the appropriate provider
func (d *Dispatcher) sendNotification(ctx context.Context, notif *Notification, msg *Message) error {
	if !notif.Active {
		return nil // Skip inactive notifications
	}

	provider, ok := GetProvider(notif.Type)
	if !ok {
		return fmt.Errorf("unknown notification provider: %s", notif.Type)
	}

	return provider.Send(ctx, notif, msg)
}

// getDefaultNotifications gets all default active channels
func (d *Dispatcher) getDefaultNotifications() ([]*Notification, error) {
	query := `
		SELECT id, user_id, name, type, config, is_default, active, created_at, updated_at
		FROM notifications
		WHERE is_default = true AND active = true
	`

	var notifications []*Notification
	err := d.db.Raw(query).Scan(&notifications).Error
	if err != nil {
		return nil, err
	}

	// Parse config JSON for each notification
	for _, notif := range notifications {
		if notif.ConfigRaw != "" {
			var config map[string]interface{}
			if err := json.Unmarshal([]byte(notif.ConfigRaw), &config); err != nil {
				log.Printf("Failed to parse notification config for %s: %v", notif.Name, err)
				continue
			}
			notif.Config = config
		}
	}

	return notifications, nil
}

// TestNotification sends a test notification
func (d *Dispatcher) TestNotification(ctx context.Context, notif *Notification) error {
	msg := &Message{
		Title:    "Test Notification",
		Body:     "This is a test notification from SEOPulse.",
		Provider: "gsc",
		Event:    "test",
		Time:     time.Now().Format(time.RFC3339),
	}

	return d.sendNotification(ctx, notif, msg)
}
