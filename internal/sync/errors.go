package sync

import (
	"context"
	"errors"

	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/oauth"
	"github.com/seopulse/seopulse/internal/provider"
)

// Configuration errors, distinct from authorization errors so the UI can
// message them differently.
var (
	// ErrNoResourceBound means no site/property is bound for the pair.
	ErrNoResourceBound = errors.New("no resource bound for project and provider")

	// ErrNoCredential means the project never authorized this provider.
	ErrNoCredential = errors.New("no credential stored for project and provider")

	// ErrUnknownProvider means the provider is not in the registered set
	// or has no sync client yet.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrSyncInProgress means another run for the same pair holds the
	// advisory lock. Purely quota protection; retry later.
	ErrSyncInProgress = errors.New("sync already in progress for project and provider")
)

// ErrorCode flattens a pipeline error into the stable code surfaced in
// JSON responses and sync-run rows. Callers distinguish re-auth
// conditions from configuration and transient failures by code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoResourceBound):
		return "no_resource_bound"
	case errors.Is(err, ErrNoCredential):
		return "no_credential"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrSyncInProgress):
		return "sync_in_progress"
	case errors.Is(err, credentials.ErrNotFound):
		return "no_credential"
	case errors.Is(err, oauth.ErrCredentialExpiredNoRefresh):
		return "credential_expired"
	case errors.Is(err, oauth.ErrRefreshRejected):
		return "refresh_rejected"
	case errors.Is(err, oauth.ErrTokenExchangeFailed):
		return "token_exchange_failed"
	case errors.Is(err, provider.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, provider.ErrProviderAuth):
		return "provider_auth"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// ReauthRequired reports whether the error means the project must go
// through the consent flow again.
func ReauthRequired(err error) bool {
	return errors.Is(err, oauth.ErrCredentialExpiredNoRefresh) ||
		errors.Is(err, oauth.ErrRefreshRejected) ||
		errors.Is(err, provider.ErrProviderAuth)
}
