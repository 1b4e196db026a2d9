package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/seopulse/seopulse/internal/models"
	"github.com/seopulse/seopulse/internal/notification"
)

// HandleGetNotifications returns all notification channels for the current user
func HandleGetNotifications(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)

		var notifications []models.Notification
		err := db.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&notifications).Error
		if err != nil {
			http.Error(w, "Failed to fetch notifications", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notifications)
	}
}

// HandleGetNotification returns a single notification channel by ID
func HandleGetNotification(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)
		notificationID := chi.URLParam(r, "id")

		var notif models.Notification
		err := db.Where("id = ? AND user_id = ?", notificationID, user.ID).First(&notif).Error
		if err != nil {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notif)
	}
}

// HandleCreateNotification creates a new notification channel
func HandleCreateNotification(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)

		var req struct {
			Name      string                 `json:"name"`
			Type      string                 `json:"type"`
			Config    map[string]interface{} `json:"config"`
			IsDefault bool                   `json:"is_default"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		// Validate provider type
		provider, ok := notification.GetProvider(req.Type)
		if !ok {
			http.Error(w, "Invalid notification type", http.StatusBadRequest)
			return
		}

		// Validate configuration
		if err := provider.Validate(req.Config); err != nil {
			http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
			return
		}

		configJSON, err := json.Marshal(req.Config)
		if err != nil {
			http.Error(w, "Failed to marshal config", http.StatusInternalServerError)
			return
		}

		notif := models.Notification{
			UserID:    user.ID,
			Name:      req.Name,
			Type:      req.Type,
			Config:    string(configJSON),
			IsDefault: req.IsDefault,
			Active:    true,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := db.Create(&notif).Error; err != nil {
			http.Error(w, "Failed to create notification", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(notif)
	}
}

// HandleUpdateNotification updates an existing notification channel
func HandleUpdateNotification(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)
		notificationID := chi.URLParam(r, "id")

		var req struct {
			Name      string                 `json:"name"`
			Type      string                 `json:"type"`
			Config    map[string]interface{} `json:"config"`
			IsDefault bool                   `json:"is_default"`
			Active    bool                   `json:"active"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		id, err := strconv.Atoi(notificationID)
		if err != nil {
			http.Error(w, "Invalid notification ID", http.StatusBadRequest)
			return
		}

		// Verify ownership
		var notif models.Notification
		if err := db.Where("id = ? AND user_id = ?", id, user.ID).First(&notif).Error; err != nil {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}

		// Validate provider type
		provider, ok := notification.GetProvider(req.Type)
		if !ok {
			http.Error(w, "Invalid notification type", http.StatusBadRequest)
			return
		}

		// Validate configuration
		if err := provider.Validate(req.Config); err != nil {
			http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
			return
		}

		configJSON, err := json.Marshal(req.Config)
		if err != nil {
			http.Error(w, "Failed to marshal config", http.StatusInternalServerError)
			return
		}

		notif.Name = req.Name
		notif.Type = req.Type
		notif.Config = string(configJSON)
		notif.IsDefault = req.IsDefault
		notif.Active = req.Active
		notif.UpdatedAt = time.Now()

		if err := db.Save(&notif).Error; err != nil {
			http.Error(w, "Failed to update notification", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notif)
	}
}

// HandleDeleteNotification deletes a notification channel
func HandleDeleteNotification(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)
		notificationID := chi.URLParam(r, "id")

		id, err := strconv.Atoi(notificationID)
		if err != nil {
			http.Error(w, "Invalid notification ID", http.StatusBadRequest)
			return
		}

		result := db.Where("id = ? AND user_id = ?", id, user.ID).Delete(&models.Notification{})
		if result.Error != nil {
			http.Error(w, "Failed to delete notification", http.StatusInternalServerError)
			return
		}
		if result.RowsAffected == 0 {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleTestNotification sends a test notification through a channel
func HandleTestNotification(db *gorm.DB, dispatcher *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)
		notificationID := chi.URLParam(r, "id")

		var row models.Notification
		err := db.Where("id = ? AND user_id = ?", notificationID, user.ID).First(&row).Error
		if err != nil {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}

		notif := notification.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			Name:      row.Name,
			Type:      row.Type,
			ConfigRaw: row.Config,
			IsDefault: row.IsDefault,
			Active:    row.Active,
		}
		if notif.ConfigRaw != "" {
			var config map[string]interface{}
			if err := json.Unmarshal([]byte(notif.ConfigRaw), &config); err != nil {
				http.Error(w, "Invalid notification configuration", http.StatusInternalServerError)
				return
			}
			notif.Config = config
		}

		err = dispatcher.TestNotification(r.Context(), &notif)
		if err != nil {
			http.Error(w, "Failed to send test notification: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Test notification sent successfully"})
	}
}

// HandleGetAvailableProviders returns all available notification providers
func HandleGetAvailableProviders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := notification.GetAllProviders()

		result := make([]map[string]string, 0, len(providers))
		for name := range providers {
			result = append(result, map[string]string{
				"name":  name,
				"label": getProviderLabel(name),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// getProviderLabel returns a user-friendly label for a provider
func getProviderLabel(name string) string {
	labels := map[string]string{
		"webhook": "Webhook",
		"slack":   "Slack",
	}

	if label, ok := labels[name]; ok {
		return label
	}

	return name
}
