package stores_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storepay/crypto"
	"storepay/native/stores"
	"storepay/native/tokenlist"
	"storepay/state"
	"storepay/storage"
)

func addr(fill byte) crypto.Address {
	var a crypto.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

type fixture struct {
	tokens  *tokenlist.Registry
	stores  *stores.Registry
	owner   crypto.Address
	tokenID uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	tokens := tokenlist.NewRegistry(manager)
	storeReg := stores.NewRegistry(manager, tokens)
	tokens.SetCascade(storeReg)

	entry, err := tokens.Register(tokenlist.TokenID{Issuer: "eosio.token", Symbol: "WAX"}, "", 2.0)
	require.NoError(t, err)

	return &fixture{tokens: tokens, stores: storeReg, owner: addr(0x22), tokenID: entry.ID}
}

func (f *fixture) addStore(t *testing.T) *stores.Store {
	t.Helper()
	store, err := f.stores.AddStore("store-1", "Demo", f.owner)
	require.NoError(t, err)
	return store
}

func TestAddStoreUniqueness(t *testing.T) {
	f := newFixture(t)
	f.addStore(t)

	_, err := f.stores.AddStore("store-1", "Other", addr(0x55))
	require.ErrorIs(t, err, stores.ErrStoreExists)

	_, err = f.stores.AddStore("store-2", "Other", f.owner)
	require.ErrorIs(t, err, stores.ErrOwnerBound)

	_, err = f.stores.AddStore("store-2", "Other", addr(0x55))
	require.NoError(t, err)
}

func TestOwnershipRequired(t *testing.T) {
	f := newFixture(t)
	err := f.stores.AddRecipient(addr(0x99), addr(0x01), 1)
	require.ErrorIs(t, err, stores.ErrNotAuthorized)
}

func TestRecipientsKeepRegistrationOrder(t *testing.T) {
	f := newFixture(t)
	store := f.addStore(t)

	require.NoError(t, f.stores.AddRecipient(f.owner, addr(0x01), 5))
	require.NoError(t, f.stores.AddRecipient(f.owner, addr(0x02), 1))
	require.NoError(t, f.stores.AddRecipient(f.owner, addr(0x03), 3))

	recipients, err := f.stores.Recipients(store.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 3)
	require.Equal(t, addr(0x01), recipients[0].Account)
	require.Equal(t, addr(0x02), recipients[1].Account)
	require.Equal(t, addr(0x03), recipients[2].Account)

	require.ErrorIs(t, f.stores.AddRecipient(f.owner, addr(0x02), 9), stores.ErrRecipientExists)

	require.NoError(t, f.stores.RemoveRecipient(f.owner, addr(0x02)))
	recipients, err = f.stores.Recipients(store.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	require.Equal(t, addr(0x03), recipients[1].Account)

	require.ErrorIs(t, f.stores.RemoveRecipient(f.owner, addr(0x02)), stores.ErrRecipientNotFound)

	require.NoError(t, f.stores.ClearRecipients(f.owner))
	recipients, err = f.stores.Recipients(store.ID)
	require.NoError(t, err)
	require.Empty(t, recipients)
}

func TestTokenPolicyLifecycle(t *testing.T) {
	f := newFixture(t)
	store := f.addStore(t)

	require.ErrorIs(t, f.stores.AddToken(f.owner, f.tokenID, 10, 5, 0), stores.ErrSlippageBounds)
	require.ErrorIs(t, f.stores.AddToken(f.owner, 999, 0, 100, 0), stores.ErrTokenNotWhitelisted)

	require.NoError(t, f.stores.AddToken(f.owner, f.tokenID, 0, 100, 1.5))
	require.ErrorIs(t, f.stores.AddToken(f.owner, f.tokenID, 0, 100, 0), stores.ErrTokenPolicyExists)

	policy, ok, err := f.stores.ActiveTokenPolicy(store.ID, f.tokenID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, policy.Active)
	require.Equal(t, 1.5, policy.USDValue)

	require.NoError(t, f.stores.EditToken(f.owner, f.tokenID, 5, 20, 2.0))
	policy, ok, err = f.stores.ActiveTokenPolicy(store.ID, f.tokenID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5.0, policy.MinSlippage)
	require.Equal(t, 20.0, policy.MaxSlippage)

	// Inactive policies report as absent for settlement.
	require.NoError(t, f.stores.SetTokenActive(f.owner, f.tokenID, false))
	_, ok, err = f.stores.ActiveTokenPolicy(store.ID, f.tokenID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.stores.SetTokenActive(f.owner, f.tokenID, true))
	require.NoError(t, f.stores.RemoveToken(f.owner, f.tokenID))
	require.ErrorIs(t, f.stores.RemoveToken(f.owner, f.tokenID), stores.ErrTokenPolicyNotFound)
}

func TestWhitelistRemovalCascades(t *testing.T) {
	f := newFixture(t)
	store := f.addStore(t)
	require.NoError(t, f.stores.AddToken(f.owner, f.tokenID, 0, 100, 0))

	other, err := f.stores.AddStore("store-2", "Second", addr(0x55))
	require.NoError(t, err)
	require.NoError(t, f.stores.AddToken(addr(0x55), f.tokenID, 0, 50, 0))

	// Delisting the token from the global whitelist reconciles every store.
	require.NoError(t, f.tokens.Remove(f.tokenID))

	_, ok, err := f.stores.ActiveTokenPolicy(store.ID, f.tokenID)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = f.stores.ActiveTokenPolicy(other.ID, f.tokenID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearRemovesEverything(t *testing.T) {
	f := newFixture(t)
	f.addStore(t)
	require.NoError(t, f.stores.AddRecipient(f.owner, addr(0x01), 1))
	require.NoError(t, f.stores.AddToken(f.owner, f.tokenID, 0, 100, 0))

	require.NoError(t, f.stores.Clear())
	_, err := f.stores.StoreByOwner(f.owner)
	require.ErrorIs(t, err, stores.ErrNotAuthorized)
}
