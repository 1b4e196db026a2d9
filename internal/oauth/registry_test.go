package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/seopulse/seopulse/internal/models"
)

func testRegistry(tokenURL, userinfoURL string) *Registry {
	configs := map[string]*oauth2.Config{
		models.ProviderGSC: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://example.com/auth",
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: "http://localhost:8080/api/integrations/gsc/callback",
			Scopes:      []string{"scope.a", "scope.b"},
		},
	}
	return NewRegistryWithConfigs(configs, userinfoURL)
}

func TestAuthCodeURL(t *testing.T) {
	registry := testRegistry("https://example.com/token", "")

	consentURL, err := registry.AuthCodeURL(models.ProviderGSC, "opaque-state")
	require.NoError(t, err)

	parsed, err := url.Parse(consentURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "opaque-state", q.Get("state"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Equal(t, "scope.a scope.b", q.Get("scope"))
}

func TestAuthCodeURLUnconfiguredProvider(t *testing.T) {
	registry := testRegistry("https://example.com/token", "")

	_, err := registry.AuthCodeURL(models.ProviderAhrefs, "state")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrProviderNotConfigured))
	require.False(t, registry.Enabled(models.ProviderAhrefs))
}

func TestExchangeSuccess(t *testing.T) {
	var gotCode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotCode = r.FormValue("code")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600}`)
	}))
	defer server.Close()

	registry := testRegistry(server.URL, "")

	token, err := registry.Exchange(context.Background(), models.ProviderGSC, "auth-code")
	require.NoError(t, err)
	require.Equal(t, "auth-code", gotCode)
	require.Equal(t, "at-1", token.AccessToken)
	require.Equal(t, "rt-1", token.RefreshToken)
	require.False(t, token.Expiry.IsZero())
}

func TestExchangeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer server.Close()

	registry := testRegistry(server.URL, "")

	_, err := registry.Exchange(context.Background(), models.ProviderGSC, "bad-code")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTokenExchangeFailed))
}

func TestExchangeMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	registry := testRegistry(server.URL, "")

	_, err := registry.Exchange(context.Background(), models.ProviderGSC, "code")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTokenExchangeFailed))
}

func TestUserEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"email":"owner@example.com"}`)
	}))
	defer server.Close()

	registry := testRegistry("https://example.com/token", server.URL)

	email, err := registry.UserEmail(context.Background(), "at-1")
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", email)
}

func TestUserEmailFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	registry := testRegistry("https://example.com/token", server.URL)

	_, err := registry.UserEmail(context.Background(), "at-1")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "403"))
}
