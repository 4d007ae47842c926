// Package crypto provides the minimal address identity used to key pool,
// backstop, and emissions state. Signing and key derivation live outside
// this module's scope (spec.md §6: callers arrive pre-authenticated).
package crypto

import (
	"encoding/hex"
	"fmt"
)

// AddressLen is the fixed width of a pool participant identity.
const AddressLen = 20

// Address identifies a pool participant, a reserve's asset, or a module
// treasury account. It is an opaque byte identity; rendering it for a
// human (bech32, checksummed hex, ...) is a gateway concern left to the
// external collaborator described in spec.md §1.
type Address struct {
	bytes [AddressLen]byte
}

// NewAddress constructs an Address from exactly AddressLen bytes.
func NewAddress(b []byte) (Address, error) {
	if len(b) != AddressLen {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLen, len(b))
	}
	var a Address
	copy(a.bytes[:], b)
	return a, nil
}

// MustNewAddress constructs an Address and panics on malformed input. Used
// for compile-time-known test fixtures and module treasury constants.
func MustNewAddress(b []byte) Address {
	a, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether the address is the zero value, used throughout the
// pool/backstop/emissions packages to detect "recipient not configured".
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a defensive copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLen)
	copy(out, a.bytes[:])
	return out
}

// String renders the address as lowercase hex for logs and error messages.
func (a Address) String() string {
	return hex.EncodeToString(a.bytes[:])
}

// DecodeAddress parses a hex-encoded address as produced by String.
func DecodeAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid address hex: %w", err)
	}
	return NewAddress(b)
}

// Less provides a total order over addresses so callers can produce
// deterministic iteration order over map[Address]... state (reward zone
// membership, per-reserve checks) without relying on Go's randomized map
// iteration.
func (a Address) Less(other Address) bool {
	for i := 0; i < AddressLen; i++ {
		if a.bytes[i] != other.bytes[i] {
			return a.bytes[i] < other.bytes[i]
		}
	}
	return false
}
