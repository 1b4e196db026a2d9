package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/seopulse/seopulse/internal/config"
	"github.com/seopulse/seopulse/internal/models"
)

// ErrTokenExchangeFailed is returned when the provider's token endpoint
// rejects an authorization code or returns an unusable response.
var ErrTokenExchangeFailed = errors.New("token exchange failed")

// ErrProviderNotConfigured is returned for a provider with no OAuth app
// registration in the config.
var ErrProviderNotConfigured = errors.New("provider not configured")

const googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Ahrefs OAuth endpoints (integration planned, auth flow wired).
var ahrefsEndpoint = oauth2.Endpoint{
	AuthURL:  "https://ahrefs.com/web/oauth/authorize",
	TokenURL: "https://auth.ahrefs.com/oauth2/token",
}

// Registry holds the OAuth client configuration for every registered
// provider. It is a closed union: gsc, ga4 and ahrefs, selected by the
// provider name.
type Registry struct {
	configs     map[string]*oauth2.Config
	userinfoURL string
	httpClient  *http.Client
}

// NewRegistry builds the provider registry from application config.
// Google Search Console and Analytics share the Google OAuth app but
// request different scopes.
func NewRegistry(cfg *config.Config) *Registry {
	configs := make(map[string]*oauth2.Config)

	if cfg.Google.Enabled {
		configs[models.ProviderGSC] = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.CallbackURL(models.ProviderGSC),
			Scopes: []string{
				"https://www.googleapis.com/auth/webmasters.readonly",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		}
		configs[models.ProviderGA4] = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.CallbackURL(models.ProviderGA4),
			Scopes: []string{
				"https://www.googleapis.com/auth/analytics.readonly",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		}
	}

	if cfg.Ahrefs.Enabled {
		configs[models.ProviderAhrefs] = &oauth2.Config{
			ClientID:     cfg.Ahrefs.ClientID,
			ClientSecret: cfg.Ahrefs.ClientSecret,
			Endpoint:     ahrefsEndpoint,
			RedirectURL:  cfg.CallbackURL(models.ProviderAhrefs),
			Scopes:       []string{"api"},
		}
	}

	return &Registry{
		configs:     configs,
		userinfoURL: googleUserinfoURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewRegistryWithConfigs builds a registry from explicit oauth2 configs.
// Used by tooling and tests that point at non-production endpoints.
func NewRegistryWithConfigs(configs map[string]*oauth2.Config, userinfoURL string) *Registry {
	return &Registry{
		configs:     configs,
		userinfoURL: userinfoURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether the provider has a usable OAuth app registration.
func (r *Registry) Enabled(provider string) bool {
	_, ok := r.configs[provider]
	return ok
}

// AuthCodeURL returns the provider's consent screen URL carrying the
// encoded state. Offline access with forced consent so Google issues a
// refresh token on every full authorization.
func (r *Registry) AuthCodeURL(provider, state string) (string, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Exchange trades an authorization code for tokens at the provider's
// token endpoint. Network errors, non-2xx responses and responses missing
// an access token all fail with ErrTokenExchangeFailed.
func (r *Registry) Exchange(ctx context.Context, provider, code string) (*oauth2.Token, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}

	token, err := cfg.Exchange(r.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: response missing access_token", ErrTokenExchangeFailed)
	}
	return token, nil
}

// Refresh obtains a new access token from a stored refresh token.
func (r *Registry) Refresh(ctx context.Context, provider, refreshToken string) (*oauth2.Token, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}

	source := cfg.TokenSource(r.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return source.Token()
}

// Scopes returns the scope set requested for the provider.
func (r *Registry) Scopes(provider string) []string {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil
	}
	return cfg.Scopes
}

// UserEmail fetches the authorized account's email from the userinfo
// endpoint. Display only; callers treat failures as non-fatal.
func (r *Registry) UserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userinfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if userInfo.Email == "" {
		return "", fmt.Errorf("userinfo response missing email")
	}

	return userInfo.Email, nil
}

// withClient pins the oauth2 transport to the registry's HTTP client so
// token calls share its timeout.
func (r *Registry) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
}
