package payments_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storepay/crypto"
	"storepay/native/payments"
	"storepay/native/stores"
	"storepay/native/tokenlist"
	"storepay/state"
	"storepay/storage"
)

type capturedEvents struct {
	events []payments.Event
}

func (c *capturedEvents) Emit(event payments.Event) {
	c.events = append(c.events, event)
}

func (c *capturedEvents) types() []string {
	types := make([]string, len(c.events))
	for i, event := range c.events {
		types[i] = event.Type
	}
	return types
}

type ledgerFixture struct {
	ledger    *payments.Ledger
	manager   *state.Manager
	tokens    *tokenlist.Registry
	stores    *stores.Registry
	events    *capturedEvents
	custody   crypto.Address
	feeAcct   crypto.Address
	payer     crypto.Address
	owner     crypto.Address
	recipient [2]crypto.Address
	token     tokenlist.TokenID
	storeID   uint64
	tokenID   uint64
}

func addr(fill byte) crypto.Address {
	var a crypto.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

// newLedgerFixture wires a ledger over an in-memory state with one
// whitelisted token (2% fee) and one store holding recipients weighted 1 and
// 3 with wide-open slippage bounds.
func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	manager := state.NewManager(storage.NewMemDB())
	tokens := tokenlist.NewRegistry(manager)
	storeReg := stores.NewRegistry(manager, tokens)
	tokens.SetCascade(storeReg)

	f := &ledgerFixture{
		manager:   manager,
		tokens:    tokens,
		stores:    storeReg,
		events:    &capturedEvents{},
		custody:   addr(0xC0),
		feeAcct:   addr(0xFE),
		payer:     addr(0x11),
		owner:     addr(0x22),
		recipient: [2]crypto.Address{addr(0x33), addr(0x44)},
		token:     tokenlist.TokenID{Issuer: "eosio.token", Symbol: "WAX"},
	}

	entry, err := tokens.Register(f.token, "", 2.0)
	require.NoError(t, err)
	f.tokenID = entry.ID

	store, err := storeReg.AddStore("store-1", "Demo Store", f.owner)
	require.NoError(t, err)
	f.storeID = store.ID
	require.NoError(t, storeReg.AddRecipient(f.owner, f.recipient[0], 1))
	require.NoError(t, storeReg.AddRecipient(f.owner, f.recipient[1], 3))
	require.NoError(t, storeReg.AddToken(f.owner, f.tokenID, 0, 100, 0))

	f.ledger = payments.NewLedger(manager, tokens, storeReg, f.custody, f.feeAcct)
	f.ledger.SetEmitter(f.events)
	f.ledger.SetNowFunc(func() int64 { return 1_700_000_000 })
	return f
}

func (f *ledgerFixture) deposit(t *testing.T, amount int64, ref string) *payments.Order {
	t.Helper()
	order, err := f.ledger.RecordDeposit(payments.DepositNotification{
		From:   f.payer,
		To:     f.custody,
		Token:  f.token,
		Amount: amount,
		Memo:   ref,
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (f *ledgerFixture) balance(t *testing.T, account crypto.Address) int64 {
	t.Helper()
	balance, err := f.manager.Balance(account, f.token)
	require.NoError(t, err)
	return balance
}

func TestRecordDepositCreatesPendingOrder(t *testing.T) {
	f := newLedgerFixture(t)

	order := f.deposit(t, 1_000_000, "order-123")
	require.Equal(t, "order-123", order.OrderRef)
	require.Equal(t, f.payer, order.Payer)
	require.Equal(t, int64(1_000_000), order.Amount)
	require.Equal(t, int64(1_700_000_000), order.CreatedAt)

	stored, ok, err := f.ledger.Order("order-123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.ID, stored.ID)

	require.Equal(t, int64(1_000_000), f.balance(t, f.custody))
	require.Equal(t, []string{payments.EventTypeOrderCreated}, f.events.types())
}

func TestRecordDepositIgnoresForeignTransfers(t *testing.T) {
	f := newLedgerFixture(t)

	// Transfer to some other account is not a deposit.
	order, err := f.ledger.RecordDeposit(payments.DepositNotification{
		From: f.payer, To: addr(0x99), Token: f.token, Amount: 100, Memo: "ref",
	})
	require.NoError(t, err)
	require.Nil(t, order)

	// Self-transfers from custody are ignored, not orders.
	order, err = f.ledger.RecordDeposit(payments.DepositNotification{
		From: f.custody, To: f.custody, Token: f.token, Amount: 100, Memo: "ref",
	})
	require.NoError(t, err)
	require.Nil(t, order)

	orders, err := f.ledger.Orders()
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestRecordDepositValidation(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.ledger.RecordDeposit(payments.DepositNotification{
		From: f.payer, To: f.custody, Token: f.token, Amount: 100, Memo: "  ",
	})
	require.Error(t, err)

	_, err = f.ledger.RecordDeposit(payments.DepositNotification{
		From: f.payer, To: f.custody, Token: f.token, Amount: 0, Memo: "ref",
	})
	require.Error(t, err)

	_, err = f.ledger.RecordDeposit(payments.DepositNotification{
		From: f.payer, To: f.custody,
		Token:  tokenlist.TokenID{Issuer: "unknown", Symbol: "XYZ"},
		Amount: 100, Memo: "ref",
	})
	require.ErrorIs(t, err, payments.ErrTokenNotWhitelisted)
}

func TestRecordDepositDuplicateRef(t *testing.T) {
	f := newLedgerFixture(t)

	f.deposit(t, 1_000_000, "order-123")
	_, err := f.ledger.RecordDeposit(payments.DepositNotification{
		From: f.payer, To: f.custody, Token: f.token, Amount: 500, Memo: "order-123",
	})
	require.ErrorIs(t, err, payments.ErrDuplicateOrderRef)

	// A settled order releases its reference for reuse.
	_, err = f.ledger.ResolveAccept("order-123", f.storeID, "memo")
	require.NoError(t, err)
	f.deposit(t, 2_000_000, "order-123")
}

func TestResolveAcceptSettles(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 1_000_000, "order-123")

	receipt, err := f.ledger.ResolveAccept("order-123", f.storeID, "settlement memo")
	require.NoError(t, err)
	require.Equal(t, payments.OutcomeSettled, receipt.Outcome)
	require.NotNil(t, receipt.Plan)
	require.Equal(t, int64(19606), receipt.Plan.Fee)
	require.Equal(t, int64(2), receipt.Plan.Remainder)

	// Fee account receives the fee plus the truncation remainder.
	require.Equal(t, int64(19608), f.balance(t, f.feeAcct))
	require.Equal(t, int64(245098), f.balance(t, f.recipient[0]))
	require.Equal(t, int64(735294), f.balance(t, f.recipient[1]))
	require.Equal(t, int64(0), f.balance(t, f.custody))

	// The order is gone.
	_, ok, err := f.ledger.Order("order-123")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []string{
		payments.EventTypeOrderCreated,
		payments.EventTypeOrderSettled,
	}, f.events.types())
}

func TestResolveAcceptUnknownOrder(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.ledger.ResolveAccept("missing", f.storeID, "")
	require.ErrorIs(t, err, payments.ErrOrderNotFound)
}

func TestResolveAcceptUnsupportedTokenRefunds(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 1_000_000, "order-123")

	// Deactivating the store policy makes the token unsupported without
	// discarding the bounds.
	require.NoError(t, f.stores.SetTokenActive(f.owner, f.tokenID, false))

	receipt, err := f.ledger.ResolveAccept("order-123", f.storeID, "")
	require.NoError(t, err)
	require.Equal(t, payments.OutcomeRefunded, receipt.Outcome)
	require.Nil(t, receipt.Plan)

	// No external transfer happened; custody still holds the full deposit
	// and the payer gained a refund entry for exactly that amount.
	require.Equal(t, int64(1_000_000), f.balance(t, f.custody))
	require.Equal(t, int64(0), f.balance(t, f.feeAcct))
	entries, err := f.ledger.Balances(f.payer)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1_000_000), entries[0].Amount)

	_, ok, err := f.ledger.Order("order-123")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveAcceptFailureLeavesOrderPending(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 1_000_000, "order-123")

	// Dropping every recipient makes the distribution impossible.
	require.NoError(t, f.stores.ClearRecipients(f.owner))

	_, err := f.ledger.ResolveAccept("order-123", f.storeID, "")
	require.ErrorIs(t, err, payments.ErrNoRecipients)

	// The order is untouched and retryable; custody balance unchanged.
	_, ok, lookupErr := f.ledger.Order("order-123")
	require.NoError(t, lookupErr)
	require.True(t, ok)
	require.Equal(t, int64(1_000_000), f.balance(t, f.custody))

	// Re-adding a recipient lets the retry succeed.
	require.NoError(t, f.stores.AddRecipient(f.owner, f.recipient[0], 1))
	receipt, err := f.ledger.ResolveAccept("order-123", f.storeID, "")
	require.NoError(t, err)
	require.Equal(t, payments.OutcomeSettled, receipt.Outcome)
}

func TestRejectThenClaimRoundTrip(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 750_000, "order-9")

	order, err := f.ledger.ResolveReject("order-9")
	require.NoError(t, err)
	require.Equal(t, "order-9", order.OrderRef)

	entries, err := f.ledger.Balances(f.payer)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(750_000), entries[0].Amount)

	claimed, err := f.ledger.Claim(f.payer)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, int64(750_000), f.balance(t, f.payer))
	require.Equal(t, int64(0), f.balance(t, f.custody))

	remaining, err := f.ledger.Balances(f.payer)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestClaimIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 500_000, "order-5")
	_, err := f.ledger.ResolveReject("order-5")
	require.NoError(t, err)

	first, err := f.ledger.Claim(f.payer)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.ledger.Claim(f.payer)
	require.NoError(t, err)
	require.Empty(t, second)
	require.Equal(t, int64(500_000), f.balance(t, f.payer))
}

func TestClaimKeepsSeparateEntries(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 100, "order-a")
	f.deposit(t, 200, "order-b")
	_, err := f.ledger.ResolveReject("order-a")
	require.NoError(t, err)
	_, err = f.ledger.ResolveReject("order-b")
	require.NoError(t, err)

	entries, err := f.ledger.Balances(f.payer)
	require.NoError(t, err)
	require.Len(t, entries, 2, "refund entries are never merged")

	claimed, err := f.ledger.Claim(f.payer)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.Equal(t, int64(300), f.balance(t, f.payer))
}

func TestRejectUnknownOrder(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.ledger.ResolveReject("missing")
	require.ErrorIs(t, err, payments.ErrOrderNotFound)
}

func TestClearDeletesAllPendingOrders(t *testing.T) {
	f := newLedgerFixture(t)
	f.deposit(t, 100, "order-a")
	f.deposit(t, 200, "order-b")
	f.deposit(t, 300, "order-c")

	count, err := f.ledger.Clear()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	orders, err := f.ledger.Orders()
	require.NoError(t, err)
	require.Empty(t, orders)
}
