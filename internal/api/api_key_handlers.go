package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/seopulse/seopulse/internal/models"
)

// HandleGetAPIKeys returns all API keys for the current user
func HandleGetAPIKeys(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)

		var apiKeys []models.APIKey
		err := db.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&apiKeys).Error
		if err != nil {
			http.Error(w, "Failed to fetch API keys", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(apiKeys)
	}
}

// HandleCreateAPIKey creates a new API key
func HandleCreateAPIKey(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)

		var req struct {
			Name      string  `json:"name"`
			ExpiresAt *string `json:"expires_at,omitempty"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.Name == "" {
			http.Error(w, "Name is required", http.StatusBadRequest)
			return
		}

		// Generate API key (32 random bytes = 43 base64 chars)
		keyBytes := make([]byte, 32)
		if _, err := rand.Read(keyBytes); err != nil {
			http.Error(w, "Failed to generate API key", http.StatusInternalServerError)
			return
		}
		apiKey := base64.URLEncoding.EncodeToString(keyBytes)

		// Hash the key
		keyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "Failed to hash API key", http.StatusInternalServerError)
			return
		}

		// Prefix (first 8 chars) is stored in clear for lookup and display
		prefix := apiKey[:8]

		var expiresAt *time.Time
		if req.ExpiresAt != nil && *req.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				http.Error(w, "Invalid expires_at format", http.StatusBadRequest)
				return
			}
			expiresAt = &t
		}

		key := models.APIKey{
			UserID:    user.ID,
			Name:      req.Name,
			KeyHash:   string(keyHash),
			Prefix:    prefix,
			ExpiresAt: expiresAt,
			CreatedAt: time.Now(),
		}
		if err := db.Create(&key).Error; err != nil {
			http.Error(w, "Failed to create API key", http.StatusInternalServerError)
			return
		}

		// Return the key ONLY ONCE (never stored in plain text)
		response := map[string]interface{}{
			"id":         key.ID,
			"name":       key.Name,
			"prefix":     key.Prefix,
			"key":        apiKey,
			"expires_at": key.ExpiresAt,
			"created_at": key.CreatedAt,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(response)
	}
}

// HandleDeleteAPIKey deletes an API key
func HandleDeleteAPIKey(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)
		keyID := chi.URLParam(r, "id")

		result := db.Where("id = ? AND user_id = ?", keyID, user.ID).Delete(&models.APIKey{})
		if result.Error != nil {
			http.Error(w, "Failed to delete API key", http.StatusInternalServerError)
			return
		}
		if result.RowsAffected == 0 {
			http.Error(w, "API key not found", http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// APIKeyAuthMiddleware authenticates requests using API keys. Used by
// external schedulers and CLI tooling that trigger syncs without a
// browser session.
func APIKeyAuthMiddleware(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				// Try Authorization header (Bearer token)
				authHeader := r.Header.Get("Authorization")
				if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
					apiKey = authHeader[7:]
				}
			}

			if apiKey == "" || len(apiKey) < 8 {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}

			// Narrow candidates by prefix, then hash-check each one
			var candidates []models.APIKey
			if err := db.Where("prefix = ?", apiKey[:8]).Find(&candidates).Error; err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			var matchedKey *models.APIKey
			for i := range candidates {
				if err := bcrypt.CompareHashAndPassword([]byte(candidates[i].KeyHash), []byte(apiKey)); err == nil {
					matchedKey = &candidates[i]
					break
				}
			}

			if matchedKey == nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			if matchedKey.IsExpired() {
				http.Error(w, "API key expired", http.StatusUnauthorized)
				return
			}

			// Update last_used_at
			db.Model(matchedKey).Update("last_used_at", time.Now())

			// Get user
			var user models.User
			if err := db.Where("id = ?", matchedKey.UserID).First(&user).Error; err != nil {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}

			if !user.Active {
				http.Error(w, "User inactive", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = setUserContext(ctx, &user)
			ctx = setAPIKeyContext(ctx, matchedKey)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// apiKeyContextKey is the context key for API key
const apiKeyContextKey contextKey = "api_key"

func setUserContext(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func setAPIKeyContext(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

func getAPIKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}
