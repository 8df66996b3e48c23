// Package claim holds the one-time pairing codes devices register so a UI
// can obtain the device's long-lived secret without out-of-band transfer.
//
// Redemption is not rate limited. Codes are short but live for only ten
// minutes and are consumed on first lookup.
package claim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vekjja/espwifi-broker/internal/model"
)

// TTL is how long a registered code stays redeemable.
const TTL = 10 * time.Minute

// Entry is a registered claim code and the credential it unlocks.
type Entry struct {
	Code         string
	DeviceID     string
	Tunnel       string
	Secret       string
	RegisteredAt time.Time
	ExpiresAt    time.Time
}

// Key returns the session key the entry points at.
func (e Entry) Key() model.Key {
	return model.Key{DeviceID: e.DeviceID, Tunnel: e.Tunnel}
}

// Store maps claim codes to entries.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTL overrides the expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		ttl:     TTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register stores code for key and secret, replacing any entry under the
// same code.
func (s *Store) Register(code string, key model.Key, secret string) Entry {
	now := s.now()
	e := Entry{
		Code:         code,
		DeviceID:     key.DeviceID,
		Tunnel:       key.Tunnel,
		Secret:       secret,
		RegisteredAt: now,
		ExpiresAt:    now.Add(s.ttl),
	}

	s.mu.Lock()
	s.entries[code] = e
	s.mu.Unlock()
	return e
}

// Redeem consumes code. When tunnel is non-empty it must equal the tunnel
// the code was registered for.
//
// The entry is deleted as soon as it is found, before the tunnel is
// compared, so a redemption naming the wrong tunnel burns the code.
func (s *Store) Redeem(code, tunnel string) (Entry, error) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.entries[code]
	if ok {
		delete(s.entries, code)
	}
	s.mu.Unlock()

	if !ok {
		return Entry{}, model.ErrClaimNotFound
	}
	if now.After(e.ExpiresAt) {
		return Entry{}, model.ErrClaimExpired
	}
	if tunnel != "" && tunnel != e.Tunnel {
		return Entry{}, fmt.Errorf("%w: registered for %q", model.ErrClaimTunnelMismatch, e.Tunnel)
	}
	return e, nil
}

// Purge drops expired entries and returns how many were removed.
func (s *Store) Purge() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for code, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, code)
			n++
		}
	}
	return n
}

// RunJanitor purges expired entries every interval until ctx is done.
// Expired entries are rejected on lookup regardless; this only bounds memory.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Purge()
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
