package tokenlist

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a whitelist entry does not exist.
	ErrNotFound = errors.New("tokenlist: token not whitelisted")
	// ErrAlreadyWhitelisted is returned when registering a duplicate
	// (issuer, symbol) pair.
	ErrAlreadyWhitelisted = errors.New("tokenlist: token already whitelisted")
	// ErrNegativeFee guards the platform fee percentage.
	ErrNegativeFee = errors.New("tokenlist: system fee cannot be negative")
	// ErrNegativeSlippage guards the platform slippage value.
	ErrNegativeSlippage = errors.New("tokenlist: slippage cannot be negative")
)

// TokenID identifies a fungible token by its issuing ledger account and
// symbol. At most one whitelist entry exists per identifier.
type TokenID struct {
	Issuer string `json:"issuer"`
	Symbol string `json:"symbol"`
}

// Normalize canonicalises the identifier: issuers compare case-insensitively
// in lowercase, symbols in uppercase.
func (t TokenID) Normalize() (TokenID, error) {
	issuer := strings.ToLower(strings.TrimSpace(t.Issuer))
	symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if issuer == "" {
		return TokenID{}, fmt.Errorf("tokenlist: token issuer required")
	}
	if symbol == "" {
		return TokenID{}, fmt.Errorf("tokenlist: token symbol required")
	}
	return TokenID{Issuer: issuer, Symbol: symbol}, nil
}

func (t TokenID) String() string {
	return t.Issuer + "/" + t.Symbol
}

// Entry is a whitelisted token with its platform-level fee policy and display
// metadata.
type Entry struct {
	ID               uint64  `json:"id"`
	Token            TokenID `json:"token"`
	ImageURL         string  `json:"imageUrl,omitempty"`
	SystemFeePercent float64 `json:"systemFeePercent"`
	Slippage         float64 `json:"slippage"`
}

// Clone returns a copy callers can mutate without affecting stored state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}
