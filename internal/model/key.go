package model

import (
	"fmt"
	"strings"
)

const (
	// MaxIDLength bounds device ids and tunnel names.
	MaxIDLength = 128

	// MaxClaimLength bounds claim codes after normalization.
	MaxClaimLength = 32
)

// Key identifies the single live device session for a device and tunnel.
// An empty Tunnel degrades the key to just the device id.
type Key struct {
	DeviceID string
	Tunnel   string
}

// NewKey validates deviceID and tunnel and returns the composite key.
func NewKey(deviceID, tunnel string) (Key, error) {
	deviceID = strings.TrimSpace(deviceID)
	tunnel = strings.TrimSpace(tunnel)

	if deviceID == "" {
		return Key{}, fmt.Errorf("%w: device id is required", ErrInvalidDeviceID)
	}
	if err := validateSegment(deviceID); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidDeviceID, err)
	}
	if tunnel != "" {
		if err := validateSegment(tunnel); err != nil {
			return Key{}, fmt.Errorf("%w: %v", ErrInvalidTunnel, err)
		}
	}
	return Key{DeviceID: deviceID, Tunnel: tunnel}, nil
}

// String renders the key as "device" or "device/tunnel".
func (k Key) String() string {
	if k.Tunnel == "" {
		return k.DeviceID
	}
	return k.DeviceID + "/" + k.Tunnel
}

func validateSegment(s string) error {
	if len(s) > MaxIDLength {
		return fmt.Errorf("longer than %d bytes", MaxIDLength)
	}
	if strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("must not contain a path separator")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("must not contain control characters")
		}
	}
	return nil
}

// NormalizeClaim trims and upper-cases a claim code. An empty result is
// allowed and means "no claim".
func NormalizeClaim(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) > MaxClaimLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidClaim, MaxClaimLength)
	}
	return code, nil
}
