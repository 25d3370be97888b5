package state

import (
	"fmt"

	"storepay/crypto"
	"storepay/native/stores"
	"storepay/native/tokenlist"
)

// --- token whitelist persistence ---

func tokenKey(id uint64) []byte {
	return prefixedKey(tokenPrefix, uint64Bytes(id))
}

func tokenIndexKey(token tokenlist.TokenID) []byte {
	return prefixedKey(tokenIndexPrefix, []byte(token.String()))
}

// TokenPut persists a whitelist entry and maintains the (issuer, symbol)
// index and entry list.
func (m *Manager) TokenPut(entry *tokenlist.Entry) error {
	if entry == nil {
		return fmt.Errorf("state: nil token entry")
	}
	if err := m.putJSON(tokenKey(entry.ID), entry); err != nil {
		return err
	}
	if err := m.putJSON(tokenIndexKey(entry.Token), entry.ID); err != nil {
		return err
	}
	return m.listAppend(tokenListKey, entry.ID)
}

// TokenByID resolves a whitelist entry by identifier.
func (m *Manager) TokenByID(id uint64) (*tokenlist.Entry, bool, error) {
	entry := new(tokenlist.Entry)
	ok, err := m.getJSON(tokenKey(id), entry)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry, true, nil
}

// TokenByIdentifier resolves a whitelist entry through the (issuer, symbol)
// index.
func (m *Manager) TokenByIdentifier(token tokenlist.TokenID) (*tokenlist.Entry, bool, error) {
	var id uint64
	ok, err := m.getJSON(tokenIndexKey(token), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.TokenByID(id)
}

// TokenDelete removes a whitelist entry together with its index entries.
func (m *Manager) TokenDelete(id uint64) error {
	entry, ok, err := m.TokenByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := m.db.Delete(tokenKey(id)); err != nil {
		return err
	}
	if err := m.db.Delete(tokenIndexKey(entry.Token)); err != nil {
		return err
	}
	return m.listRemove(tokenListKey, id)
}

// TokenList returns every whitelist entry in registration order.
func (m *Manager) TokenList() ([]*tokenlist.Entry, error) {
	ids, err := m.readList(tokenListKey)
	if err != nil {
		return nil, err
	}
	entries := make([]*tokenlist.Entry, 0, len(ids))
	for _, id := range ids {
		entry, ok, err := m.TokenByID(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: token list references missing entry %d", id)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// TokenNextID allocates the next whitelist entry identifier.
func (m *Manager) TokenNextID() (uint64, error) {
	return m.nextSeq(tokenSeqKey)
}

// --- store registry persistence ---

func storeKey(id uint64) []byte {
	return prefixedKey(storePrefix, uint64Bytes(id))
}

func storeRefKey(ref string) []byte {
	return prefixedKey(storeRefPrefix, []byte(ref))
}

func storeOwnerKey(owner crypto.Address) []byte {
	return prefixedKey(storeOwnerPrefix, owner.Bytes())
}

func recipientsKey(storeID uint64) []byte {
	return prefixedKey(recipientsPrefix, uint64Bytes(storeID))
}

func policyKey(storeID, tokenID uint64) []byte {
	return prefixedKey(policyPrefix, uint64Bytes(storeID), uint64Bytes(tokenID))
}

func policyListKey(storeID uint64) []byte {
	return prefixedKey(policyListPrefix, uint64Bytes(storeID))
}

// StorePut persists a store record and maintains the reference and owner
// indexes and the store list.
func (m *Manager) StorePut(store *stores.Store) error {
	if store == nil {
		return fmt.Errorf("state: nil store")
	}
	if err := m.putJSON(storeKey(store.ID), store); err != nil {
		return err
	}
	if err := m.putJSON(storeRefKey(store.StoreRef), store.ID); err != nil {
		return err
	}
	if err := m.putJSON(storeOwnerKey(store.Owner), store.ID); err != nil {
		return err
	}
	return m.listAppend(storeListKey, store.ID)
}

// StoreByID resolves a store by identifier.
func (m *Manager) StoreByID(id uint64) (*stores.Store, bool, error) {
	store := new(stores.Store)
	ok, err := m.getJSON(storeKey(id), store)
	if err != nil || !ok {
		return nil, false, err
	}
	return store, true, nil
}

// StoreByRef resolves a store through the reference index.
func (m *Manager) StoreByRef(ref string) (*stores.Store, bool, error) {
	var id uint64
	ok, err := m.getJSON(storeRefKey(ref), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.StoreByID(id)
}

// StoreByOwner resolves a store through the owning-account index.
func (m *Manager) StoreByOwner(owner crypto.Address) (*stores.Store, bool, error) {
	var id uint64
	ok, err := m.getJSON(storeOwnerKey(owner), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.StoreByID(id)
}

// StoreDelete removes a store record together with its index entries.
func (m *Manager) StoreDelete(id uint64) error {
	store, ok, err := m.StoreByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := m.db.Delete(storeKey(id)); err != nil {
		return err
	}
	if err := m.db.Delete(storeRefKey(store.StoreRef)); err != nil {
		return err
	}
	if err := m.db.Delete(storeOwnerKey(store.Owner)); err != nil {
		return err
	}
	return m.listRemove(storeListKey, id)
}

// StoreList returns every registered store in registration order.
func (m *Manager) StoreList() ([]*stores.Store, error) {
	ids, err := m.readList(storeListKey)
	if err != nil {
		return nil, err
	}
	all := make([]*stores.Store, 0, len(ids))
	for _, id := range ids {
		store, ok, err := m.StoreByID(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: store list references missing store %d", id)
		}
		all = append(all, store)
	}
	return all, nil
}

// StoreNextID allocates the next store identifier.
func (m *Manager) StoreNextID() (uint64, error) {
	return m.nextSeq(storeSeqKey)
}

// RecipientsPut replaces the ordered recipient list for a store. A nil or
// empty list deletes the record.
func (m *Manager) RecipientsPut(storeID uint64, recipients []stores.Recipient) error {
	if len(recipients) == 0 {
		return m.db.Delete(recipientsKey(storeID))
	}
	return m.putJSON(recipientsKey(storeID), recipients)
}

// Recipients returns the ordered recipient list for a store.
func (m *Manager) Recipients(storeID uint64) ([]stores.Recipient, error) {
	var recipients []stores.Recipient
	if _, err := m.getJSON(recipientsKey(storeID), &recipients); err != nil {
		return nil, err
	}
	return recipients, nil
}

// TokenPolicyPut persists a per-store token policy and maintains the
// store's policy list.
func (m *Manager) TokenPolicyPut(storeID uint64, policy *stores.TokenPolicy) error {
	if policy == nil {
		return fmt.Errorf("state: nil token policy")
	}
	if err := m.putJSON(policyKey(storeID, policy.TokenID), policy); err != nil {
		return err
	}
	return m.listAppend(policyListKey(storeID), policy.TokenID)
}

// TokenPolicyGet resolves the policy for a (store, whitelist token) pair.
func (m *Manager) TokenPolicyGet(storeID, tokenID uint64) (*stores.TokenPolicy, bool, error) {
	policy := new(stores.TokenPolicy)
	ok, err := m.getJSON(policyKey(storeID, tokenID), policy)
	if err != nil || !ok {
		return nil, false, err
	}
	return policy, true, nil
}

// TokenPolicyDelete removes a per-store token policy.
func (m *Manager) TokenPolicyDelete(storeID, tokenID uint64) error {
	if err := m.db.Delete(policyKey(storeID, tokenID)); err != nil {
		return err
	}
	return m.listRemove(policyListKey(storeID), tokenID)
}

// TokenPolicies returns every token policy attached to a store.
func (m *Manager) TokenPolicies(storeID uint64) ([]*stores.TokenPolicy, error) {
	ids, err := m.readList(policyListKey(storeID))
	if err != nil {
		return nil, err
	}
	policies := make([]*stores.TokenPolicy, 0, len(ids))
	for _, tokenID := range ids {
		policy, ok, err := m.TokenPolicyGet(storeID, tokenID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: policy list references missing policy %d", tokenID)
		}
		policies = append(policies, policy)
	}
	return policies, nil
}
