package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/models"
)

func testCredential(expiresAt time.Time, refreshToken string) *models.Credential {
	cred := &models.Credential{
		ProjectID:   27,
		Provider:    models.ProviderGSC,
		AccessToken: "at-old",
		ExpiresAt:   expiresAt,
	}
	if refreshToken != "" {
		cred.RefreshToken = &refreshToken
	}
	return cred
}

func TestEnsureValidFresh(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	store := credentials.NewMemoryStore()
	refresher := NewRefresher(testRegistry(server.URL, ""), store)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher.now = func() time.Time { return now }

	cred := testCredential(now.Add(time.Hour), "rt-1")
	got, err := refresher.EnsureValid(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "at-old", got.AccessToken)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls), "fresh credential must not hit the token endpoint")
	require.Equal(t, 0, store.Len(), "fresh credential must not be rewritten")
}

func TestEnsureValidRefreshesInsideSkew(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "rt-1", r.FormValue("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-new","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	store := credentials.NewMemoryStore()
	refresher := NewRefresher(testRegistry(server.URL, ""), store)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher.now = func() time.Time { return now }

	// Still technically alive, but inside the skew window
	cred := testCredential(now.Add(time.Minute), "rt-1")
	got, err := refresher.EnsureValid(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "at-new", got.AccessToken)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// The refreshed credential is persisted before EnsureValid returns
	stored, err := store.Get(context.Background(), 27, models.ProviderGSC)
	require.NoError(t, err)
	require.Equal(t, "at-new", stored.AccessToken)
	require.NotNil(t, stored.RefreshToken)
	require.Equal(t, "rt-1", *stored.RefreshToken, "refresh token survives when provider does not rotate it")
}

func TestEnsureValidRotatedRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-new","token_type":"Bearer","refresh_token":"rt-2","expires_in":3600}`)
	}))
	defer server.Close()

	store := credentials.NewMemoryStore()
	refresher := NewRefresher(testRegistry(server.URL, ""), store)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher.now = func() time.Time { return now }

	cred := testCredential(now.Add(-time.Hour), "rt-1")
	got, err := refresher.EnsureValid(context.Background(), cred)
	require.NoError(t, err)
	require.NotNil(t, got.RefreshToken)
	require.Equal(t, "rt-2", *got.RefreshToken)

	stored, err := store.Get(context.Background(), 27, models.ProviderGSC)
	require.NoError(t, err)
	require.Equal(t, "rt-2", *stored.RefreshToken)
}

func TestEnsureValidExpiredNoRefreshToken(t *testing.T) {
	store := credentials.NewMemoryStore()
	refresher := NewRefresher(testRegistry("https://example.com/token", ""), store)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher.now = func() time.Time { return now }

	cred := testCredential(now.Add(-time.Hour), "")
	_, err := refresher.EnsureValid(context.Background(), cred)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCredentialExpiredNoRefresh))
}

func TestEnsureValidRefreshRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer server.Close()

	store := credentials.NewMemoryStore()
	refresher := NewRefresher(testRegistry(server.URL, ""), store)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher.now = func() time.Time { return now }

	cred := testCredential(now.Add(-time.Hour), "rt-revoked")
	_, err := refresher.EnsureValid(context.Background(), cred)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRefreshRejected))
	require.Equal(t, 0, store.Len(), "a rejected refresh must not overwrite the stored credential")
}
