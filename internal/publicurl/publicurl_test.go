package publicurl

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vekjja/espwifi-broker/internal/model"
)

func TestResolver_Configured(t *testing.T) {
	for _, base := range []string{"https://relay.example.com/", "http://relay.example.com", "ws://relay.example.com"} {
		r, err := NewResolver(base)
		require.NoError(t, err)
		assert.True(t, r.Configured())

		req := httptest.NewRequest("GET", "http://internal:8080/api/register", nil)
		assert.Equal(t, "wss://relay.example.com", r.Base(req), base)
	}
}

func TestResolver_ConfiguredWithPath(t *testing.T) {
	r, err := NewResolver("https://example.com/relay/")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "wss://example.com/relay", r.Base(req))
}

func TestResolver_Invalid(t *testing.T) {
	_, err := NewResolver("ftp://example.com")
	assert.Error(t, err)

	_, err = NewResolver("https://")
	assert.Error(t, err)
}

func TestResolver_Inferred(t *testing.T) {
	r, err := NewResolver("")
	require.NoError(t, err)
	assert.False(t, r.Configured())

	req := httptest.NewRequest("GET", "http://internal:8080/", nil)
	assert.Equal(t, "wss://internal:8080", r.Base(req))

	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "relay.example.com, proxy.local")
	assert.Equal(t, "wss://relay.example.com", r.Base(req))
}

func TestURLs(t *testing.T) {
	base := "wss://relay.example.com"
	key := model.Key{DeviceID: "dev 1", Tunnel: "ws_control"}

	assert.Equal(t, "wss://relay.example.com/ws/ui/dev%201?tunnel=ws_control", UIURL(base, key))
	assert.Equal(t, "wss://relay.example.com/ws/device/dev%201?tunnel=ws_control", DeviceURL(base, key))
	assert.Equal(t, "wss://relay.example.com/ws/ui/dev1", UIURL(base, model.Key{DeviceID: "dev1"}))
}

func TestWithToken(t *testing.T) {
	u := WithToken("wss://relay.example.com/ws/ui/dev1?tunnel=ws_control", "a b")
	assert.Equal(t, "wss://relay.example.com/ws/ui/dev1?token=a+b&tunnel=ws_control", u)

	assert.Equal(t, "wss://x/ws/ui/dev1", WithToken("wss://x/ws/ui/dev1", ""))
}
