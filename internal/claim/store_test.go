package claim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vekjja/espwifi-broker/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestStore_RedeemOnce(t *testing.T) {
	s := NewStore()
	key := model.Key{DeviceID: "dev1", Tunnel: "ws_control"}
	s.Register("AB12CD", key, "abc")

	e, err := s.Redeem("AB12CD", "ws_control")
	require.NoError(t, err)
	assert.Equal(t, "dev1", e.DeviceID)
	assert.Equal(t, "ws_control", e.Tunnel)
	assert.Equal(t, "abc", e.Secret)
	assert.Equal(t, key, e.Key())

	_, err = s.Redeem("AB12CD", "ws_control")
	assert.ErrorIs(t, err, model.ErrClaimNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestStore_RedeemWithoutTunnel(t *testing.T) {
	s := NewStore()
	s.Register("AB12CD", model.Key{DeviceID: "dev1", Tunnel: "ws_control"}, "abc")

	e, err := s.Redeem("AB12CD", "")
	require.NoError(t, err)
	assert.Equal(t, "ws_control", e.Tunnel)
}

func TestStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))

	e := s.Register("AB12CD", model.Key{DeviceID: "dev1"}, "abc")
	assert.Equal(t, e.RegisteredAt.Add(TTL), e.ExpiresAt)

	clock.Advance(11 * time.Minute)

	_, err := s.Redeem("AB12CD", "")
	assert.ErrorIs(t, err, model.ErrClaimExpired)
	assert.Equal(t, 0, s.Len(), "expired entry should be deleted on lookup")

	_, err = s.Redeem("AB12CD", "")
	assert.ErrorIs(t, err, model.ErrClaimNotFound)
}

func TestStore_RedeemAtExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	s.Register("AB12CD", model.Key{DeviceID: "dev1"}, "abc")

	clock.Advance(TTL)

	_, err := s.Redeem("AB12CD", "")
	assert.NoError(t, err, "a code is still valid exactly at its expiry instant")
}

// A redemption naming the wrong tunnel consumes the code. This mirrors the
// lookup-then-compare order in Redeem and is asserted so a change to it is
// a deliberate one.
func TestStore_TunnelMismatchBurnsCode(t *testing.T) {
	s := NewStore()
	s.Register("AB12CD", model.Key{DeviceID: "dev1", Tunnel: "ws_control"}, "abc")

	_, err := s.Redeem("AB12CD", "camera")
	assert.ErrorIs(t, err, model.ErrClaimTunnelMismatch)

	_, err = s.Redeem("AB12CD", "ws_control")
	assert.ErrorIs(t, err, model.ErrClaimNotFound)
}

func TestStore_RegisterReplacesCode(t *testing.T) {
	s := NewStore()
	s.Register("AB12CD", model.Key{DeviceID: "dev1"}, "old")
	s.Register("AB12CD", model.Key{DeviceID: "dev1"}, "new")

	e, err := s.Redeem("AB12CD", "")
	require.NoError(t, err)
	assert.Equal(t, "new", e.Secret)
}

func TestStore_Purge(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	s.Register("OLD", model.Key{DeviceID: "dev1"}, "a")
	clock.Advance(9 * time.Minute)
	s.Register("NEW", model.Key{DeviceID: "dev2"}, "b")
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, s.Purge())
	assert.Equal(t, 1, s.Len())

	_, err := s.Redeem("NEW", "")
	assert.NoError(t, err)
}

func TestStore_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	s := NewStore()
	s.Register("AB12CD", model.Key{DeviceID: "dev1"}, "abc")

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Redeem("AB12CD", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestExactlyOnceRedemptionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("a registered code redeems exactly once", prop.ForAll(
		func(code, deviceID, secret string, attempts int) bool {
			s := NewStore()
			s.Register(code, model.Key{DeviceID: deviceID}, secret)

			ok := 0
			for i := 0; i < attempts; i++ {
				e, err := s.Redeem(code, "")
				if err == nil {
					if e.Secret != secret || e.DeviceID != deviceID {
						return false
					}
					ok++
				}
			}
			return ok == 1
		},
		gen.AlphaString(),
		gen.Identifier(),
		gen.AlphaString(),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestStore_RunJanitor(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	s.Register("OLD", model.Key{DeviceID: "dev1"}, "abc")
	clock.Advance(TTL + time.Second)
	s.Register("NEW", model.Key{DeviceID: "dev2"}, "def")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, err := s.Redeem("NEW", "")
	assert.NoError(t, err)
}
