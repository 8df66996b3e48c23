// Package publicurl builds the absolute WebSocket URLs handed to devices and
// dashboards so they can reconnect through the public endpoint.
package publicurl

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vekjja/espwifi-broker/internal/model"
)

// Route prefixes of the upgrade endpoints. The device id follows, path-escaped.
const (
	// DevicePathPrefix is where devices open their control connection.
	DevicePathPrefix = "/ws/device/"
	// UIPathPrefix is where dashboards attach to a device.
	UIPathPrefix = "/ws/ui/"
)

// Resolver resolves the public base URL for a request. A configured base
// wins over forwarded headers. The scheme is always wss since transport
// security is terminated in front of the broker.
type Resolver struct {
	host string
	path string
}

// NewResolver parses publicBase. An empty publicBase infers the base from
// each request.
func NewResolver(publicBase string) (*Resolver, error) {
	publicBase = strings.TrimSpace(publicBase)
	if publicBase == "" {
		return &Resolver{}, nil
	}

	u, err := url.Parse(publicBase)
	if err != nil {
		return nil, fmt.Errorf("public base url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("public base url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("public base url: missing host")
	}
	return &Resolver{host: u.Host, path: strings.TrimRight(u.Path, "/")}, nil
}

// Configured reports whether a fixed base was supplied.
func (r *Resolver) Configured() bool {
	return r.host != ""
}

// Base returns the wss:// base for req without a trailing slash.
func (r *Resolver) Base(req *http.Request) string {
	if r.host != "" {
		return "wss://" + r.host + r.path
	}

	host := firstHeaderValue(req.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = req.Host
	}
	return "wss://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// UIURL returns the UI upgrade URL for key.
func UIURL(base string, key model.Key) string {
	return build(base, UIPathPrefix, key)
}

// DeviceURL returns the device upgrade URL for key.
func DeviceURL(base string, key model.Key) string {
	return build(base, DevicePathPrefix, key)
}

func build(base, prefix string, key model.Key) string {
	u := base + prefix + url.PathEscape(key.DeviceID)
	if key.Tunnel != "" {
		u += "?tunnel=" + url.QueryEscape(key.Tunnel)
	}
	return u
}

// WithToken returns rawURL with the token query parameter set. An empty
// token leaves rawURL unchanged.
func WithToken(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
