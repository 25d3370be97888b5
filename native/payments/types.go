package payments

import (
	"errors"

	"storepay/crypto"
	"storepay/native/tokenlist"
)

var (
	// ErrTokenNotWhitelisted is returned when a deposit or settlement
	// references a token absent from the global whitelist.
	ErrTokenNotWhitelisted = errors.New("payments: token not whitelisted")
	// ErrOrderNotFound is returned when an order reference resolves to no
	// pending order.
	ErrOrderNotFound = errors.New("payments: order not found")
	// ErrDuplicateOrderRef is returned when a deposit reuses the reference
	// of an order that is still pending.
	ErrDuplicateOrderRef = errors.New("payments: order reference already pending")
	// ErrNoRecipients is returned when a store's recipient weights sum to
	// zero, making a distribution impossible.
	ErrNoRecipients = errors.New("payments: recipient weights sum to zero")
	// ErrFeeCalculation is returned when the computed system fee is not
	// strictly positive.
	ErrFeeCalculation = errors.New("payments: system fee calculation error")
	// ErrNegativePayout is returned when a positive-weight recipient would
	// receive a non-positive payout.
	ErrNegativePayout = errors.New("payments: recipient payout is not positive")
	// ErrDistributionOverdrawn reports that a computed distribution exceeds
	// the distributable amount. Truncating division makes this unreachable;
	// it exists to fail loud if the arithmetic ever changes.
	ErrDistributionOverdrawn = errors.New("payments: distribution overdrawn")
)

// Order is an escrowed deposit awaiting an accept or reject decision. Orders
// are created by deposit notifications, never mutated in place, and destroyed
// on settlement or rejection.
type Order struct {
	ID        uint64            `json:"id"`
	OrderRef  string            `json:"orderRef"`
	Payer     crypto.Address    `json:"payer"`
	Token     tokenlist.TokenID `json:"token"`
	Amount    int64             `json:"amount"`
	CreatedAt int64             `json:"createdAt"`
}

// Clone returns a copy callers can mutate without affecting stored state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// RefundEntry is a refunded-but-unclaimed amount held for a payer. Entries
// are created by rejected (or unsupported-token) orders and drained by claim;
// multiple entries per payer are kept separate, never merged.
type RefundEntry struct {
	ID     uint64            `json:"id"`
	Token  tokenlist.TokenID `json:"token"`
	Amount int64             `json:"amount"`
}

// DepositNotification is the inbound record of a ledger transfer into the
// contract's custody account. Memo carries the payer-supplied order
// reference.
type DepositNotification struct {
	From   crypto.Address    `json:"from"`
	To     crypto.Address    `json:"to"`
	Token  tokenlist.TokenID `json:"token"`
	Amount int64             `json:"amount"`
	Memo   string            `json:"memo"`
}

// Outcome classifies the terminal result of accepting an order.
type Outcome string

const (
	// OutcomeSettled means the deposit was split between the fee account
	// and the store's recipients.
	OutcomeSettled Outcome = "settled"
	// OutcomeRefunded means the store does not support the order's token
	// and the full amount moved to the payer's refund balance.
	OutcomeRefunded Outcome = "refunded"
)

// Receipt reports what ResolveAccept did with an order.
type Receipt struct {
	Outcome Outcome `json:"outcome"`
	Order   *Order  `json:"order"`
	Plan    *Plan   `json:"plan,omitempty"`
}
