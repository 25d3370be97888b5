package stores

import (
	"errors"

	"storepay/crypto"
)

var (
	// ErrStoreExists is returned when a store reference is already taken.
	ErrStoreExists = errors.New("stores: store already registered")
	// ErrOwnerBound enforces the one-store-per-owning-account invariant.
	ErrOwnerBound = errors.New("stores: account already bound to another store")
	// ErrNotAuthorized is returned when an account owns no store.
	ErrNotAuthorized = errors.New("stores: account is not authorized for any store")
	// ErrRecipientExists guards recipient uniqueness per store.
	ErrRecipientExists = errors.New("stores: recipient already exists")
	// ErrRecipientNotFound is returned when removing an unknown recipient.
	ErrRecipientNotFound = errors.New("stores: recipient not found")
	// ErrSlippageBounds enforces minSlippage <= maxSlippage.
	ErrSlippageBounds = errors.New("stores: min slippage cannot exceed max slippage")
	// ErrTokenPolicyExists guards one policy per (store, token).
	ErrTokenPolicyExists = errors.New("stores: token already added to store")
	// ErrTokenPolicyNotFound is returned when a policy lookup misses.
	ErrTokenPolicyNotFound = errors.New("stores: token policy not found")
	// ErrTokenNotWhitelisted is returned when a store adds a token absent
	// from the global whitelist.
	ErrTokenNotWhitelisted = errors.New("stores: token not whitelisted")
)

// Store is a registered merchant store. Owner is the account authorized to
// manage recipients and token policies; exactly one store exists per owner.
type Store struct {
	ID       uint64         `json:"id"`
	StoreRef string         `json:"storeRef"`
	Name     string         `json:"name"`
	Owner    crypto.Address `json:"owner"`
}

// Clone returns a copy callers can mutate without affecting stored state.
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Recipient is a weighted revenue-share recipient. Weights are unsigned and
// need not sum to any fixed total; a zero-weight recipient is skipped during
// settlement rather than rejected.
type Recipient struct {
	Account crypto.Address `json:"account"`
	Weight  uint8          `json:"weight"`
}

// TokenPolicy narrows the platform slippage for one whitelisted token within
// a store. Inactive policies are treated as absent during settlement.
type TokenPolicy struct {
	TokenID     uint64  `json:"tokenId"`
	MinSlippage float64 `json:"minSlippage"`
	MaxSlippage float64 `json:"maxSlippage"`
	Active      bool    `json:"active"`
	USDValue    float64 `json:"usdValue"`
}

// Clone returns a copy callers can mutate without affecting stored state.
func (p *TokenPolicy) Clone() *TokenPolicy {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
