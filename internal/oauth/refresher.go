package oauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/models"
)

// ErrCredentialExpiredNoRefresh is returned when a credential has expired
// and no refresh token is stored; the project must re-authorize.
var ErrCredentialExpiredNoRefresh = errors.New("credential expired and no refresh token stored")

// ErrRefreshRejected is returned when the provider refuses a stored
// refresh token (revoked or rotated externally); the project must
// re-authorize.
var ErrRefreshRejected = errors.New("token refresh rejected by provider")

// DefaultExpirySkew is the safety margin before expiry at which a
// credential is refreshed, so a token never expires mid-call.
const DefaultExpirySkew = 2 * time.Minute

// Refresher hands out credentials that are valid at call time,
// transparently refreshing and persisting near-expired ones.
type Refresher struct {
	registry *Registry
	store    credentials.Store
	skew     time.Duration
	now      func() time.Time
}

// NewRefresher creates a Refresher over the given registry and store.
func NewRefresher(registry *Registry, store credentials.Store) *Refresher {
	return &Refresher{
		registry: registry,
		store:    store,
		skew:     DefaultExpirySkew,
		now:      time.Now,
	}
}

// EnsureValid returns the credential unchanged while it is comfortably
// inside its lifetime, and otherwise refreshes it. A successful refresh is
// persisted before control returns, so a crash right after refreshing
// never leaves a concurrent sync run holding the only copy of the new
// token.
func (r *Refresher) EnsureValid(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if r.now().Before(cred.ExpiresAt.Add(-r.skew)) {
		return cred, nil
	}

	if !cred.HasRefreshToken() {
		return nil, fmt.Errorf("%w: project %d provider %s", ErrCredentialExpiredNoRefresh, cred.ProjectID, cred.Provider)
	}

	log.Printf("OAuth: Refreshing credential for project %d provider %s", cred.ProjectID, cred.Provider)

	token, err := r.registry.Refresh(ctx, cred.Provider, *cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}

	updated := *cred
	updated.AccessToken = token.AccessToken
	updated.ExpiresAt = token.Expiry
	if token.RefreshToken != "" && token.RefreshToken != *cred.RefreshToken {
		// provider rotated the refresh token
		rotated := token.RefreshToken
		updated.RefreshToken = &rotated
	}

	if err := r.store.Put(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	return &updated, nil
}
