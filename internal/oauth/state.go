package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seopulse/seopulse/internal/models"
)

// ErrMalformedState is returned when a redirect state parameter is not a
// valid encoded flow state.
var ErrMalformedState = errors.New("malformed flow state")

// FlowState is the context threaded through a consent redirect: which
// project and which integration the callback should write a credential
// for, plus the nonce binding it to a pending flow row. It rides as a
// single URL-safe query parameter and carries no signature, so nothing
// decoded from it may be trusted for authorization decisions on its own.
type FlowState struct {
	Provider  string `json:"provider,omitempty"`
	ProjectID int    `json:"project_id,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

// EncodeState serializes a flow state into an opaque URL-safe string.
func EncodeState(fs FlowState) string {
	raw, err := json.Marshal(fs)
	if err != nil {
		// FlowState has no unmarshalable fields
		panic(fmt.Sprintf("encode flow state: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState recovers a flow state from the opaque string. A payload
// that is not valid base64url-wrapped JSON fails with ErrMalformedState.
// A missing provider field gets the default integration kind (gsc); a
// provider that is present but unknown fails closed.
func DecodeState(s string) (FlowState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return FlowState{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	var fs FlowState
	if err := json.Unmarshal(raw, &fs); err != nil {
		return FlowState{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	if fs.Provider == "" {
		fs.Provider = models.ProviderGSC
	} else if !models.KnownProvider(fs.Provider) {
		return FlowState{}, fmt.Errorf("%w: unknown provider %q", ErrMalformedState, fs.Provider)
	}

	return fs, nil
}

// GenerateNonce generates a random nonce binding a flow state to its
// pending flow row.
func GenerateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
