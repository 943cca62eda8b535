package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRoundTripper struct {
	got *http.Request
}

func (r *recordingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r.got = req
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestAuthTransportSetsBearerHeaderWhenTokenConfigured(t *testing.T) {
	base := &recordingRoundTripper{}
	tr := &authTransport{token: "shh-secret", base: base}

	req, err := http.NewRequest(http.MethodPost, "http://localhost:11434/api/chat", nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer shh-secret", base.got.Header.Get("Authorization"))
}

func TestAuthTransportOmitsHeaderWithoutToken(t *testing.T) {
	base := &recordingRoundTripper{}
	tr := &authTransport{token: "", base: base}

	req, err := http.NewRequest(http.MethodPost, "http://localhost:11434/api/chat", nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, base.got.Header.Get("Authorization"))
}

func TestAuthTransportDoesNotMutateOriginalRequest(t *testing.T) {
	base := &recordingRoundTripper{}
	tr := &authTransport{token: "shh-secret", base: base}

	req, err := http.NewRequest(http.MethodPost, "http://localhost:11434/api/chat", nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"), "original request must not be mutated")
}
