// Package auth holds the device key the client registers with.
//
// The key is a shared secret string sent as a raw UDP payload. It is how the
// host learns the client's address and that the client is still there; it is
// not cryptographic authentication and there is no challenge/response.
package auth

import (
	"errors"
	"fmt"
)

// MaxKeySize is the longest key the host accepts. It reads auth packets
// into a 1024-byte buffer and NUL-terminates them.
const MaxKeySize = 1023

var (
	ErrEmptyKey    = errors.New("device key is empty")
	ErrKeyTooLong  = errors.New("device key too long")
	ErrKeyNotASCII = errors.New("device key must be printable ASCII")
)

// DeviceKey is the registration/liveness secret.
type DeviceKey string

// Validate checks that the key can be sent and compared by the host.
func (k DeviceKey) Validate() error {
	if len(k) == 0 {
		return ErrEmptyKey
	}
	if len(k) > MaxKeySize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrKeyTooLong, len(k), MaxKeySize)
	}
	for i := 0; i < len(k); i++ {
		if c := k[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: byte 0x%02x at %d", ErrKeyNotASCII, c, i)
		}
	}
	return nil
}

// Payload returns the datagram body for an auth packet.
func (k DeviceKey) Payload() []byte {
	return []byte(k)
}

// Matches reports whether an incoming auth packet carries this key; the
// host side of the exchange. Trailing NULs are ignored.
func (k DeviceKey) Matches(payload []byte) bool {
	for len(payload) > 0 && payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	return string(payload) == string(k)
}

// String masks the key so it can be logged.
func (k DeviceKey) String() string {
	if len(k) <= 2 {
		return "***"
	}
	return string(k[:2]) + "***"
}
