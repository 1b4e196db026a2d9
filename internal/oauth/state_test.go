package oauth

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seopulse/seopulse/internal/models"
)

func TestStateRoundTrip(t *testing.T) {
	in := FlowState{Provider: models.ProviderGA4, ProjectID: 27, Nonce: "abc123"}

	encoded := EncodeState(in)
	require.NotEmpty(t, encoded)

	out, err := DecodeState(encoded)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestStateURLSafe(t *testing.T) {
	encoded := EncodeState(FlowState{Provider: models.ProviderGSC, ProjectID: 999999, Nonce: "n"})

	// Must survive a URL query parameter without escaping
	_, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.NotContains(t, encoded, "+")
	require.NotContains(t, encoded, "/")
	require.NotContains(t, encoded, "=")
}

func TestDecodeStateMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", base64.RawURLEncoding.EncodeToString([]byte("not json"))},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeState(tc.input)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedState))
		})
	}
}

func TestDecodeStateDefaultsProvider(t *testing.T) {
	// Older dashboard builds encoded states without a provider field
	encoded := base64.RawURLEncoding.EncodeToString([]byte(`{"project_id":5,"nonce":"x"}`))

	out, err := DecodeState(encoded)
	require.NoError(t, err)
	require.Equal(t, models.ProviderGSC, out.Provider)
	require.Equal(t, 5, out.ProjectID)
}

func TestDecodeStateUnknownProvider(t *testing.T) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(`{"provider":"bing","project_id":5}`))

	_, err := DecodeState(encoded)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedState))
}

func TestGenerateNonceUnique(t *testing.T) {
	a, err := GenerateNonce()
	require.NoError(t, err)
	b, err := GenerateNonce()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
