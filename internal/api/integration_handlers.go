package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seopulse/seopulse/internal/config"
	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/models"
	"github.com/seopulse/seopulse/internal/oauth"
	appsync "github.com/seopulse/seopulse/internal/sync"
)

// pendingFlowTTL bounds how long a started consent flow stays redeemable.
const pendingFlowTTL = 15 * time.Minute

// IntegrationStore is the slice of the storage layer the integration
// handlers touch. database.Store implements it.
type IntegrationStore interface {
	CreatePendingFlow(ctx context.Context, flow *models.PendingFlow) error
	ConsumePendingFlow(ctx context.Context, nonce string) (*models.PendingFlow, error)
	GscSite(ctx context.Context, projectID int) (*models.GscSite, error)
	Ga4Property(ctx context.Context, projectID int) (*models.Ga4Property, error)
	SaveGscSite(ctx context.Context, site *models.GscSite) error
	SaveGa4Property(ctx context.Context, prop *models.Ga4Property) error
	LatestSyncRun(ctx context.Context, projectID int, provider string) (*models.SyncRun, error)
}

// Syncer triggers sync runs. sync.Orchestrator implements it.
type Syncer interface {
	RunSync(ctx context.Context, projectID int, provider string, days int) (*appsync.Result, error)
}

// HandleAuthorizeIntegration starts the OAuth consent flow for a
// (project, provider) pair. It returns the provider's consent screen
// URL for the frontend to navigate to; the request itself rides on the
// JWT header, so the handler cannot redirect the browser directly.
func HandleAuthorizeIntegration(store IntegrationStore, registry *oauth.Registry, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		if !models.KnownProvider(provider) {
			http.Error(w, "Unknown provider", http.StatusNotFound)
			return
		}
		if !registry.Enabled(provider) {
			http.Error(w, "Integration not configured", http.StatusServiceUnavailable)
			return
		}

		projectID, err := strconv.Atoi(r.URL.Query().Get("project_id"))
		if err != nil || projectID <= 0 {
			http.Error(w, "project_id is required", http.StatusBadRequest)
			return
		}

		nonce, err := oauth.GenerateNonce()
		if err != nil {
			http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
			return
		}

		flow := &models.PendingFlow{
			Nonce:     nonce,
			ProjectID: projectID,
			Provider:  provider,
			CreatedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(pendingFlowTTL),
		}
		if err := store.CreatePendingFlow(r.Context(), flow); err != nil {
			log.Println("Integrations: Failed to persist pending flow:", err.Error())
			http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
			return
		}

		state := oauth.EncodeState(oauth.FlowState{
			Provider:  provider,
			ProjectID: projectID,
			Nonce:     nonce,
		})

		consentURL, err := registry.AuthCodeURL(provider, state)
		if err != nil {
			http.Error(w, "Integration not configured", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": consentURL})
	}
}

// HandleIntegrationCallback completes the OAuth consent flow. Every path
// out of here is a redirect back to the integrations page: the browser
// arrives from the provider, not from our frontend, so errors surface as
// query parameters rather than status codes.
func HandleIntegrationCallback(store IntegrationStore, creds credentials.Store, registry *oauth.Registry, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		if !models.KnownProvider(provider) {
			http.Error(w, "Unknown provider", http.StatusNotFound)
			return
		}

		q := r.URL.Query()

		// Provider reported an error (e.g. the user denied consent).
		// No exchange is attempted and nothing is stored.
		if errParam := q.Get("error"); errParam != "" {
			log.Printf("Integrations: Callback for %s returned error %q", provider, errParam)
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    errParam,
			})
			return
		}

		state, err := oauth.DecodeState(q.Get("state"))
		if err != nil {
			log.Println("Integrations: Rejecting callback:", err.Error())
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "invalid_state",
			})
			return
		}

		// The URL path names the provider authoritatively; the state copy
		// is informational and may disagree on forged requests.
		if state.ProjectID <= 0 {
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "invalid_state",
			})
			return
		}

		flow, err := store.ConsumePendingFlow(r.Context(), state.Nonce)
		if err != nil {
			log.Println("Integrations: Failed to consume pending flow:", err.Error())
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "internal",
			})
			return
		}
		if flow == nil || flow.ProjectID != state.ProjectID || flow.Provider != provider {
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "invalid_state",
			})
			return
		}

		code := q.Get("code")
		if code == "" {
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "missing_code",
			})
			return
		}

		token, err := registry.Exchange(r.Context(), provider, code)
		if err != nil {
			log.Println("Integrations: Token exchange failed:", err.Error())
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "token_exchange_failed",
			})
			return
		}

		// Account email is display-only; a userinfo failure never fails
		// the flow.
		email, err := registry.UserEmail(r.Context(), token.AccessToken)
		if err != nil {
			log.Println("Integrations: Could not resolve account email:", err.Error())
		}

		cred := &models.Credential{
			ProjectID:    state.ProjectID,
			Provider:     provider,
			AccessToken:  token.AccessToken,
			ExpiresAt:    token.Expiry,
			AccountEmail: email,
			Scopes:       strings.Join(registry.Scopes(provider), " "),
		}
		if token.RefreshToken != "" {
			rt := token.RefreshToken
			cred.RefreshToken = &rt
		}

		if err := creds.Put(r.Context(), cred); err != nil {
			log.Println("Integrations: Failed to store credential:", err.Error())
			redirectStatus(w, r, cfg, map[string]string{
				"provider": provider,
				"error":    "internal",
			})
			return
		}

		log.Printf("Integrations: Connected %s for project %d", provider, state.ProjectID)
		redirectStatus(w, r, cfg, map[string]string{
			"provider":   provider,
			"project_id": strconv.Itoa(state.ProjectID),
			"success":    "1",
		})
	}
}

// SyncRequest is the body of a manual sync trigger
type SyncRequest struct {
	ProjectID int `json:"project_id"`
	Days      int `json:"days,omitempty"`
}

// SyncResponse is the outcome of a sync trigger
type SyncResponse struct {
	Success    bool       `json:"success"`
	RunID      string     `json:"run_id,omitempty"`
	RowsSynced int64      `json:"rows_synced"`
	DateRange  *DateRange `json:"date_range,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// DateRange is the synced window, inclusive start, exclusive end
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HandleTriggerSync runs a sync for a (project, provider) pair and
// reports the outcome, including partial progress when a run fails
// after committing rows.
func HandleTriggerSync(orch Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")

		var req SyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ProjectID <= 0 {
			http.Error(w, "project_id is required", http.StatusBadRequest)
			return
		}

		result, err := orch.RunSync(r.Context(), req.ProjectID, provider, req.Days)

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			code := appsync.ErrorCode(err)
			resp := SyncResponse{Success: false, Error: code}
			if result != nil {
				resp.RunID = result.RunID
				resp.RowsSynced = result.RowsSynced
				resp.DateRange = &DateRange{
					Start: result.DateStart.Format("2006-01-02"),
					End:   result.DateEnd.Format("2006-01-02"),
				}
			}
			w.WriteHeader(syncErrorStatus(code))
			json.NewEncoder(w).Encode(resp)
			return
		}

		json.NewEncoder(w).Encode(SyncResponse{
			Success:    true,
			RunID:      result.RunID,
			RowsSynced: result.RowsSynced,
			DateRange: &DateRange{
				Start: result.DateStart.Format("2006-01-02"),
				End:   result.DateEnd.Format("2006-01-02"),
			},
		})
	}
}

// IntegrationStatus describes one provider's connection state for a project
type IntegrationStatus struct {
	Provider       string          `json:"provider"`
	Enabled        bool            `json:"enabled"`
	Connected      bool            `json:"connected"`
	AccountEmail   string          `json:"account_email,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	ReauthRequired bool            `json:"reauth_required"`
	SiteURL        string          `json:"site_url,omitempty"`
	PropertyID     string          `json:"property_id,omitempty"`
	LastSync       *models.SyncRun `json:"last_sync,omitempty"`
}

// HandleIntegrationStatus reports connection, binding and last-run state
// for every provider of a project.
func HandleIntegrationStatus(store IntegrationStore, creds credentials.Store, registry *oauth.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := strconv.Atoi(r.URL.Query().Get("project_id"))
		if err != nil || projectID <= 0 {
			http.Error(w, "project_id is required", http.StatusBadRequest)
			return
		}

		statuses := make([]IntegrationStatus, 0, 3)
		for _, provider := range []string{models.ProviderGSC, models.ProviderGA4, models.ProviderAhrefs} {
			status := IntegrationStatus{
				Provider: provider,
				Enabled:  registry.Enabled(provider),
			}

			cred, err := creds.Get(r.Context(), projectID, provider)
			if err != nil && err != credentials.ErrNotFound {
				http.Error(w, "Failed to load integration state", http.StatusInternalServerError)
				return
			}
			if cred != nil {
				status.Connected = true
				status.AccountEmail = cred.AccountEmail
				expires := cred.ExpiresAt
				status.ExpiresAt = &expires
				status.ReauthRequired = cred.ExpiresAt.Before(time.Now()) && !cred.HasRefreshToken()
			}

			switch provider {
			case models.ProviderGSC:
				site, err := store.GscSite(r.Context(), projectID)
				if err != nil {
					http.Error(w, "Failed to load integration state", http.StatusInternalServerError)
					return
				}
				if site != nil {
					status.SiteURL = site.SiteURL
				}
			case models.ProviderGA4:
				prop, err := store.Ga4Property(r.Context(), projectID)
				if err != nil {
					http.Error(w, "Failed to load integration state", http.StatusInternalServerError)
					return
				}
				if prop != nil {
					status.PropertyID = prop.PropertyID
				}
			}

			run, err := store.LatestSyncRun(r.Context(), projectID, provider)
			if err != nil {
				http.Error(w, "Failed to load integration state", http.StatusInternalServerError)
				return
			}
			status.LastSync = run

			statuses = append(statuses, status)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statuses)
	}
}

// HandleSetGscSite binds a project to a Search Console site
func HandleSetGscSite(store IntegrationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectID       int    `json:"project_id"`
			SiteURL         string `json:"site_url"`
			PermissionLevel string `json:"permission_level,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ProjectID <= 0 || req.SiteURL == "" {
			http.Error(w, "project_id and site_url are required", http.StatusBadRequest)
			return
		}

		site := &models.GscSite{
			ProjectID:       req.ProjectID,
			SiteURL:         req.SiteURL,
			PermissionLevel: req.PermissionLevel,
		}
		if err := store.SaveGscSite(r.Context(), site); err != nil {
			http.Error(w, "Failed to save site binding", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(site)
	}
}

// HandleSetGa4Property binds a project to an Analytics 4 property
func HandleSetGa4Property(store IntegrationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectID    int    `json:"project_id"`
			PropertyID   string `json:"property_id"`
			PropertyName string `json:"property_name,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ProjectID <= 0 || req.PropertyID == "" {
			http.Error(w, "project_id and property_id are required", http.StatusBadRequest)
			return
		}

		prop := &models.Ga4Property{
			ProjectID:    req.ProjectID,
			PropertyID:   req.PropertyID,
			PropertyName: req.PropertyName,
		}
		if err := store.SaveGa4Property(r.Context(), prop); err != nil {
			http.Error(w, "Failed to save property binding", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(prop)
	}
}

// redirectStatus sends the browser back to the integrations page with
// outcome query parameters.
func redirectStatus(w http.ResponseWriter, r *http.Request, cfg *config.Config, params map[string]string) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	http.Redirect(w, r, cfg.StatusURL()+"?"+values.Encode(), http.StatusFound)
}

// syncErrorStatus maps sync error codes to HTTP status codes
func syncErrorStatus(code string) int {
	switch code {
	case "unknown_provider":
		return http.StatusBadRequest
	case "no_resource_bound", "no_credential":
		return http.StatusNotFound
	case "sync_in_progress":
		return http.StatusConflict
	case "rate_limited":
		return http.StatusTooManyRequests
	case "credential_expired", "refresh_rejected", "provider_auth", "token_exchange_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
