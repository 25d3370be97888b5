package payments

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storepay/crypto"
	"storepay/native/stores"
	"storepay/native/tokenlist"
)

var (
	errNilState      = errors.New("payments: state not configured")
	errNilRegistries = errors.New("payments: registries not configured")
	errNilCustody    = errors.New("payments: custody account not configured")
	errNilFeeAccount = errors.New("payments: fee account not configured")
)

// State is the persistence surface the ledger mutates: the pending order
// table (with its orderRef index), per-payer refund balances, and the
// account balances behind the value transfer primitive.
type State interface {
	OrderPut(*Order) error
	OrderByRef(ref string) (*Order, bool, error)
	OrderDelete(id uint64) error
	OrderList() ([]*Order, error)
	OrderNextID() (uint64, error)
	RefundAdd(payer crypto.Address, token tokenlist.TokenID, amount int64) error
	RefundsByPayer(payer crypto.Address) ([]*RefundEntry, error)
	RefundDelete(payer crypto.Address, id uint64) error
	Credit(addr crypto.Address, token tokenlist.TokenID, amount int64) error
	Transfer(from, to crypto.Address, token tokenlist.TokenID, amount int64) error
}

// Tx is a staged view of the payment state. Mutations reach the backing
// store only on Commit; dropping the Tx leaves the store untouched.
type Tx interface {
	State
	Commit() error
}

// TxState is a payment state backend that can open staged transactions.
// Every ledger operation runs inside one, giving the all-or-nothing apply
// path: either every mutation and transfer of an operation lands, or none
// do.
type TxState interface {
	State
	Begin() (Tx, error)
}

// TokenRegistry is the read surface of the global token whitelist.
type TokenRegistry interface {
	Lookup(token tokenlist.TokenID) (*tokenlist.Entry, bool, error)
}

// StoreRegistry is the read surface of the store registry used during
// settlement.
type StoreRegistry interface {
	ActiveTokenPolicy(storeID, tokenID uint64) (*stores.TokenPolicy, bool, error)
	Recipients(storeID uint64) ([]stores.Recipient, error)
}

// Ledger owns the pending order and refund balance tables and drives
// settlement. Operations are serialized; each one commits as a single unit
// or aborts with no mutation at all.
type Ledger struct {
	mu         sync.Mutex
	state      TxState
	tokens     TokenRegistry
	stores     StoreRegistry
	emitter    Emitter
	custody    crypto.Address
	feeAccount crypto.Address
	nowFn      func() int64
}

// NewLedger creates a ledger over the supplied state and registries. The
// custody account is the contract identity deposits must target; the fee
// account receives the system fee and truncation remainders.
func NewLedger(state TxState, tokens TokenRegistry, storeReg StoreRegistry, custody, feeAccount crypto.Address) *Ledger {
	return &Ledger{
		state:      state,
		tokens:     tokens,
		stores:     storeReg,
		emitter:    NoopEmitter{},
		custody:    custody,
		feeAccount: feeAccount,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// Custody returns the escrow account deposits must target.
func (l *Ledger) Custody() crypto.Address {
	return l.custody
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter Emitter) {
	if emitter == nil {
		l.emitter = NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) emit(event Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(event)
}

func (l *Ledger) checkConfigured() error {
	switch {
	case l == nil || l.state == nil:
		return errNilState
	case l.tokens == nil || l.stores == nil:
		return errNilRegistries
	case l.custody.IsZero():
		return errNilCustody
	case l.feeAccount.IsZero():
		return errNilFeeAccount
	}
	return nil
}

// RecordDeposit handles an inbound deposit notification. Transfers that do
// not target the custody account, or that originate from it, are ignored and
// produce no order. A valid deposit escrows a new pending order keyed by the
// memo's order reference and credits the custody balance.
func (l *Ledger) RecordDeposit(n DepositNotification) (*Order, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.To != l.custody || n.From == l.custody {
		return nil, nil
	}
	ref := strings.TrimSpace(n.Memo)
	if ref == "" {
		return nil, fmt.Errorf("payments: memo must carry an order reference")
	}
	if n.Amount <= 0 {
		return nil, fmt.Errorf("payments: deposit amount must be positive (got %d)", n.Amount)
	}
	entry, ok, err := l.tokens.Lookup(n.Token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, n.Token)
	}

	tx, err := l.state.Begin()
	if err != nil {
		return nil, err
	}
	if _, exists, err := tx.OrderByRef(ref); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrderRef, ref)
	}
	id, err := tx.OrderNextID()
	if err != nil {
		return nil, err
	}
	order := &Order{
		ID:        id,
		OrderRef:  ref,
		Payer:     n.From,
		Token:     entry.Token,
		Amount:    n.Amount,
		CreatedAt: l.nowFn(),
	}
	if err := tx.OrderPut(order); err != nil {
		return nil, err
	}
	if err := tx.Credit(l.custody, entry.Token, n.Amount); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	l.emit(NewOrderCreatedEvent(order))
	return order.Clone(), nil
}

// ResolveAccept settles the pending order identified by orderRef against the
// given store. When the store carries no active policy for the order's token
// the deposit is refunded to the payer's balance instead; that is a terminal
// outcome, not an error. Any settlement failure leaves the order pending.
func (l *Ledger) ResolveAccept(orderRef string, storeID uint64, memo string) (*Receipt, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.state.Begin()
	if err != nil {
		return nil, err
	}
	order, ok, err := tx.OrderByRef(strings.TrimSpace(orderRef))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderRef)
	}
	entry, ok, err := l.tokens.Lookup(order.Token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, order.Token)
	}

	policy, supported, err := l.stores.ActiveTokenPolicy(storeID, entry.ID)
	if err != nil {
		return nil, err
	}
	if !supported {
		if err := l.refundOrder(tx, order); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		l.emit(NewOrderRefundedEvent(order))
		return &Receipt{Outcome: OutcomeRefunded, Order: order.Clone()}, nil
	}

	recipients, err := l.stores.Recipients(storeID)
	if err != nil {
		return nil, err
	}
	plan, err := ComputeSplit(SplitInput{
		Amount:           order.Amount,
		SystemFeePercent: entry.SystemFeePercent,
		Slippage:         entry.Slippage,
		MinSlippage:      policy.MinSlippage,
		MaxSlippage:      policy.MaxSlippage,
		Recipients:       recipients,
	})
	if err != nil {
		return nil, err
	}
	for _, transfer := range plan.Transfers(l.feeAccount, memo) {
		if err := tx.Transfer(l.custody, transfer.To, order.Token, transfer.Amount); err != nil {
			return nil, err
		}
	}
	if err := tx.OrderDelete(order.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	l.emit(NewOrderSettledEvent(order, plan))
	return &Receipt{Outcome: OutcomeSettled, Order: order.Clone(), Plan: plan}, nil
}

// ResolveReject deletes the pending order and moves its full amount into the
// payer's refund balance.
func (l *Ledger) ResolveReject(orderRef string) (*Order, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.state.Begin()
	if err != nil {
		return nil, err
	}
	order, ok, err := tx.OrderByRef(strings.TrimSpace(orderRef))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderRef)
	}
	if err := l.refundOrder(tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	l.emit(NewOrderRejectedEvent(order))
	return order.Clone(), nil
}

// Claim drains every refund entry held for the payer through the transfer
// primitive. Claiming with no entries is a no-op, not an error.
func (l *Ledger) Claim(payer crypto.Address) ([]*RefundEntry, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.state.Begin()
	if err != nil {
		return nil, err
	}
	entries, err := tx.RefundsByPayer(payer)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	total := int64(0)
	for _, entry := range entries {
		if err := tx.Transfer(l.custody, payer, entry.Token, entry.Amount); err != nil {
			return nil, err
		}
		if err := tx.RefundDelete(payer, entry.ID); err != nil {
			return nil, err
		}
		total += entry.Amount
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	l.emit(NewBalanceClaimedEvent(payer.String(), len(entries), total))
	return entries, nil
}

// Clear deletes every pending order without moving funds. Fund-unsafe;
// restricted to the contract operator and intended for test environments.
func (l *Ledger) Clear() (int, error) {
	if err := l.checkConfigured(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.state.Begin()
	if err != nil {
		return 0, err
	}
	orders, err := tx.OrderList()
	if err != nil {
		return 0, err
	}
	for _, order := range orders {
		if err := tx.OrderDelete(order.ID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	l.emit(NewOrdersClearedEvent(len(orders)))
	return len(orders), nil
}

// Order resolves a pending order by its reference.
func (l *Ledger) Order(orderRef string) (*Order, bool, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, false, err
	}
	order, ok, err := l.state.OrderByRef(strings.TrimSpace(orderRef))
	if err != nil || !ok {
		return nil, false, err
	}
	return order.Clone(), true, nil
}

// Orders lists every pending order.
func (l *Ledger) Orders() ([]*Order, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, err
	}
	orders, err := l.state.OrderList()
	if err != nil {
		return nil, err
	}
	cloned := make([]*Order, len(orders))
	for i, order := range orders {
		cloned[i] = order.Clone()
	}
	return cloned, nil
}

// Balances lists the payer's unclaimed refund entries.
func (l *Ledger) Balances(payer crypto.Address) ([]*RefundEntry, error) {
	if err := l.checkConfigured(); err != nil {
		return nil, err
	}
	return l.state.RefundsByPayer(payer)
}

func (l *Ledger) refundOrder(tx Tx, order *Order) error {
	if err := tx.RefundAdd(order.Payer, order.Token, order.Amount); err != nil {
		return err
	}
	return tx.OrderDelete(order.ID)
}
