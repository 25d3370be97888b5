package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the raw byte length of an account address.
const AddressLength = 20

// Address represents a 20-byte account address. The zero value is reserved
// and never refers to a real account.
type Address [AddressLength]byte

// ZeroAddress is the empty address constant used for "unset" comparisons.
var ZeroAddress = Address{}

// NewAddress builds an address from a raw byte slice.
func NewAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("crypto: address must be %d bytes long (got %d)", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// ParseAddress decodes a 0x-prefixed hex address string.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != AddressLength*2 {
		return addr, fmt.Errorf("crypto: address must be %d hex chars (got %d)", AddressLength*2, len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("crypto: decode address: %w", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler so addresses serialise as
// 0x-prefixed hex in JSON bodies and stored records.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
