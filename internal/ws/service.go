package ws

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vekjja/espwifi-broker/internal/claim"
	"github.com/vekjja/espwifi-broker/internal/journal"
	"github.com/vekjja/espwifi-broker/internal/logger"
	"github.com/vekjja/espwifi-broker/internal/model"
	"github.com/vekjja/espwifi-broker/internal/publicurl"
)

const (
	// Time allowed to write a control frame or event to the peer.
	defaultWriteWait = 5 * time.Second

	// Time allowed between reads before a transport is considered dead.
	defaultPongWait = 120 * time.Second

	// Heartbeat period. Must be less than pongWait.
	defaultPingPeriod = 30 * time.Second

	// Maximum inbound frame size.
	defaultMaxFrameBytes = 8 << 20

	// Device-to-UI queue depth.
	defaultQueueDepth = 8
)

// Config tunes a Service. Zero values select the defaults.
type Config struct {
	DeviceAuthToken string
	UIAuthToken     string
	MaxFrameBytes   int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	QueueDepth      int
	Now             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = defaultMaxFrameBytes
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = defaultPingPeriod
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Service owns the registry and claim store and runs device and UI
// sessions against them.
type Service struct {
	cfg      Config
	hub      *Hub
	claims   *claim.Store
	urls     *publicurl.Resolver
	journal  journal.Sink
	upgrader websocket.Upgrader
}

// NewService creates a Service. A nil sink discards lifecycle events.
func NewService(cfg Config, claims *claim.Store, urls *publicurl.Resolver, sink journal.Sink) *Service {
	if sink == nil {
		sink = journal.Nop{}
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		hub:     NewHub(),
		claims:  claims,
		urls:    urls,
		journal: sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Connections authenticate with tokens, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Hub returns the session registry.
func (s *Service) Hub() *Hub { return s.hub }

// Claims returns the claim store.
func (s *Service) Claims() *claim.Store { return s.claims }

// URLs returns the public URL resolver.
func (s *Service) URLs() *publicurl.Resolver { return s.urls }

// UITokenRequired reports whether a UI must present a credential to attach
// to a device that supplied secret.
func (s *Service) UITokenRequired(secret string) bool {
	return secret != "" || s.cfg.UIAuthToken != ""
}

// DeviceAuthRequired reports whether a global device credential is configured.
func (s *Service) DeviceAuthRequired() bool { return s.cfg.DeviceAuthToken != "" }

// AuthorizeDevice checks the global device credential, if one is configured.
func (s *Service) AuthorizeDevice(credential string) error {
	if s.cfg.DeviceAuthToken == "" {
		return nil
	}
	if !secureEqual(credential, s.cfg.DeviceAuthToken) {
		return model.ErrUnauthorized
	}
	return nil
}

// authorizeUI checks credential against the device's secret, or against
// the global UI credential when the device supplied none.
func (s *Service) authorizeUI(d *DeviceSession, credential string) error {
	expected := d.secret
	if expected == "" {
		expected = s.cfg.UIAuthToken
	}
	if expected == "" {
		return nil
	}
	if !secureEqual(credential, expected) {
		return model.ErrUnauthorized
	}
	return nil
}

// RedeemClaim consumes a claim code and records the outcome.
func (s *Service) RedeemClaim(code, tunnel string) (claim.Entry, error) {
	e, err := s.claims.Redeem(code, tunnel)
	if err != nil {
		s.record(model.EventClaimRejected, model.Key{Tunnel: tunnel}, "", err.Error())
		return claim.Entry{}, err
	}
	s.record(model.EventClaimRedeemed, e.Key(), "", "")
	return e, nil
}

// secureEqual compares digests so neither content nor length leaks through timing.
func secureEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func (s *Service) record(typ model.EventType, key model.Key, connID, detail string) {
	ev := model.Event{
		Type:     typ,
		DeviceID: key.DeviceID,
		Tunnel:   key.Tunnel,
		ConnID:   connID,
		Detail:   detail,
		At:       s.cfg.Now(),
	}
	if err := s.journal.Record(context.Background(), ev); err != nil {
		logger.Default().WithError(err).WithField("event", typ).Warn("failed to record event")
	}
}

// Close closes every device session, and with them every UI session.
func (s *Service) Close() {
	s.hub.CloseAll(websocket.CloseGoingAway, ReasonShutdown)
}
