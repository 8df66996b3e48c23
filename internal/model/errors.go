package model

import "errors"

var (
	// ErrInvalidDeviceID is returned when a device id is empty or malformed.
	ErrInvalidDeviceID = errors.New("invalid device id")

	// ErrInvalidTunnel is returned when a tunnel name is malformed.
	ErrInvalidTunnel = errors.New("invalid tunnel")

	// ErrInvalidClaim is returned when a claim code exceeds the allowed length.
	ErrInvalidClaim = errors.New("invalid claim code")

	// ErrUnauthorized is returned when a credential is missing or does not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDeviceOffline is returned when a UI attaches to a key with no live device session.
	ErrDeviceOffline = errors.New("device not connected")

	// ErrClaimNotFound is returned when a claim code is unknown or already consumed.
	ErrClaimNotFound = errors.New("claim code not found")

	// ErrClaimExpired is returned when a claim code outlived its window.
	ErrClaimExpired = errors.New("claim code expired")

	// ErrClaimTunnelMismatch is returned when a redemption names a different tunnel
	// than the one the code was registered for. The code is consumed regardless.
	ErrClaimTunnelMismatch = errors.New("claim code tunnel mismatch")
)

// IsClaimRejection reports whether err is one of the claim redemption failures
// that the API surfaces as "invalid or expired".
func IsClaimRejection(err error) bool {
	return errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrClaimExpired) ||
		errors.Is(err, ErrClaimTunnelMismatch)
}
