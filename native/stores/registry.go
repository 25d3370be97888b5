package stores

import (
	"errors"
	"strings"

	"storepay/crypto"
	"storepay/native/tokenlist"
)

var errNilState = errors.New("stores: state not configured")

// State is the persistence surface for the store registry. Recipient lists
// are stored as ordered slices so registration order survives round trips.
type State interface {
	StorePut(*Store) error
	StoreByID(id uint64) (*Store, bool, error)
	StoreByRef(ref string) (*Store, bool, error)
	StoreByOwner(owner crypto.Address) (*Store, bool, error)
	StoreDelete(id uint64) error
	StoreList() ([]*Store, error)
	StoreNextID() (uint64, error)
	RecipientsPut(storeID uint64, recipients []Recipient) error
	Recipients(storeID uint64) ([]Recipient, error)
	TokenPolicyPut(storeID uint64, policy *TokenPolicy) error
	TokenPolicyGet(storeID, tokenID uint64) (*TokenPolicy, bool, error)
	TokenPolicyDelete(storeID, tokenID uint64) error
	TokenPolicies(storeID uint64) ([]*TokenPolicy, error)
}

// Whitelist is the read surface of the global token whitelist the registry
// validates store token policies against.
type Whitelist interface {
	Get(id uint64) (*tokenlist.Entry, bool, error)
}

// Registry manages merchant stores, their weighted recipient lists, and
// per-store token policies. Ownership checks resolve the caller's store by
// owning account.
type Registry struct {
	state     State
	whitelist Whitelist
}

// NewRegistry creates a store registry over the supplied backends.
func NewRegistry(state State, whitelist Whitelist) *Registry {
	return &Registry{state: state, whitelist: whitelist}
}

// AddStore registers a new store. Store references are unique and each
// owning account may hold at most one store.
func (r *Registry) AddStore(storeRef, name string, owner crypto.Address) (*Store, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	ref := strings.TrimSpace(storeRef)
	if ref == "" {
		return nil, errors.New("stores: store reference required")
	}
	if owner.IsZero() {
		return nil, errors.New("stores: owner account required")
	}
	if _, ok, err := r.state.StoreByRef(ref); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrStoreExists
	}
	if _, ok, err := r.state.StoreByOwner(owner); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrOwnerBound
	}
	id, err := r.state.StoreNextID()
	if err != nil {
		return nil, err
	}
	store := &Store{ID: id, StoreRef: ref, Name: strings.TrimSpace(name), Owner: owner}
	if err := r.state.StorePut(store); err != nil {
		return nil, err
	}
	return store.Clone(), nil
}

// StoreByOwner resolves the store owned by the supplied account.
func (r *Registry) StoreByOwner(owner crypto.Address) (*Store, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	store, ok, err := r.state.StoreByOwner(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}
	return store.Clone(), nil
}

// StoreByID resolves a store by its identifier.
func (r *Registry) StoreByID(id uint64) (*Store, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	store, ok, err := r.state.StoreByID(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return store.Clone(), true, nil
}

// StoreByRef resolves a store by its reference.
func (r *Registry) StoreByRef(ref string) (*Store, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	store, ok, err := r.state.StoreByRef(strings.TrimSpace(ref))
	if err != nil || !ok {
		return nil, false, err
	}
	return store.Clone(), true, nil
}

// List returns every registered store.
func (r *Registry) List() ([]*Store, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	list, err := r.state.StoreList()
	if err != nil {
		return nil, err
	}
	cloned := make([]*Store, len(list))
	for i, store := range list {
		cloned[i] = store.Clone()
	}
	return cloned, nil
}

// TokenPolicies lists every token policy configured for the store.
func (r *Registry) TokenPolicies(storeID uint64) ([]*TokenPolicy, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.TokenPolicies(storeID)
}

// AddRecipient appends a weighted recipient to the owner's store. Recipients
// are unique per account and keep their registration order.
func (r *Registry) AddRecipient(owner, recipient crypto.Address, weight uint8) error {
	store, err := r.StoreByOwner(owner)
	if err != nil {
		return err
	}
	if recipient.IsZero() {
		return errors.New("stores: recipient account required")
	}
	recipients, err := r.state.Recipients(store.ID)
	if err != nil {
		return err
	}
	for _, existing := range recipients {
		if existing.Account == recipient {
			return ErrRecipientExists
		}
	}
	recipients = append(recipients, Recipient{Account: recipient, Weight: weight})
	return r.state.RecipientsPut(store.ID, recipients)
}

// RemoveRecipient deletes a single recipient from the owner's store.
func (r *Registry) RemoveRecipient(owner, recipient crypto.Address) error {
	store, err := r.StoreByOwner(owner)
	if err != nil {
		return err
	}
	recipients, err := r.state.Recipients(store.ID)
	if err != nil {
		return err
	}
	for i, existing := range recipients {
		if existing.Account == recipient {
			updated := append(append([]Recipient{}, recipients[:i]...), recipients[i+1:]...)
			return r.state.RecipientsPut(store.ID, updated)
		}
	}
	return ErrRecipientNotFound
}

// ClearRecipients removes every recipient from the owner's store.
func (r *Registry) ClearRecipients(owner crypto.Address) error {
	store, err := r.StoreByOwner(owner)
	if err != nil {
		return err
	}
	return r.state.RecipientsPut(store.ID, nil)
}

// Recipients returns the ordered recipient list for a store.
func (r *Registry) Recipients(storeID uint64) ([]Recipient, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	recipients, err := r.state.Recipients(storeID)
	if err != nil {
		return nil, err
	}
	return append([]Recipient{}, recipients...), nil
}

// AddToken attaches a whitelisted token to the owner's store with slippage
// bounds. New policies start active.
func (r *Registry) AddToken(owner crypto.Address, tokenID uint64, minSlippage, maxSlippage, usdValue float64) error {
	store, err := r.StoreByOwner(owner)
	if err != nil {
		return err
	}
	if minSlippage > maxSlippage {
		return ErrSlippageBounds
	}
	if r.whitelist == nil {
		return errors.New("stores: whitelist not configured")
	}
	if _, ok, err := r.whitelist.Get(tokenID); err != nil {
		return err
	} else if !ok {
		return ErrTokenNotWhitelisted
	}
	if _, ok, err := r.state.TokenPolicyGet(store.ID, tokenID); err != nil {
		return err
	} else if ok {
		return ErrTokenPolicyExists
	}
	policy := &TokenPolicy{
		TokenID:     tokenID,
		MinSlippage: minSlippage,
		MaxSlippage: maxSlippage,
		Active:      true,
		USDValue:    usdValue,
	}
	return r.state.TokenPolicyPut(store.ID, policy)
}

// EditToken updates the slippage bounds and display value of an existing
// policy.
func (r *Registry) EditToken(owner crypto.Address, tokenID uint64, minSlippage, maxSlippage, usdValue float64) error {
	if minSlippage > maxSlippage {
		return ErrSlippageBounds
	}
	return r.modifyPolicy(owner, tokenID, func(policy *TokenPolicy) {
		policy.MinSlippage = minSlippage
		policy.MaxSlippage = maxSlippage
		policy.USDValue = usdValue
	})
}

// SetTokenActive toggles a policy without discarding its bounds.
func (r *Registry) SetTokenActive(owner crypto.Address, tokenID uint64, active bool) error {
	return r.modifyPolicy(owner, tokenID, func(policy *TokenPolicy) {
		policy.Active = active
	})
}

// RemoveToken detaches a token policy from the owner's store.
func (r *Registry) RemoveToken(owner crypto.Address, tokenID uint64) error {
	store, err := r.StoreByOwner(owner)
	if err != nil {
		return err
	}
	if _, ok, err := r.state.TokenPolicyGet(store.ID, tokenID); err != nil {
		return err
	} else if !ok {
		return ErrTokenPolicyNotFound
	}
	return r.state.TokenPolicyDelete(store.ID, tokenID)
}

// RemoveSystemToken drops the policy for a delisted whitelist token from
// every store. It implements the whitelist's reconciliation cascade.
func (r *Registry) RemoveSystemToken(tokenID uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	all, err := r.state.StoreList()
	if err != nil {
		return err
	}
	for _, store := range all {
		_, ok, err := r.state.TokenPolicyGet(store.ID, tokenID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := r.state.TokenPolicyDelete(store.ID, tokenID); err != nil {
			return err
		}
	}
	return nil
}

// ActiveTokenPolicy resolves the settlement-relevant policy for a store and
// whitelist token. Inactive policies report as absent.
func (r *Registry) ActiveTokenPolicy(storeID, tokenID uint64) (*TokenPolicy, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	policy, ok, err := r.state.TokenPolicyGet(storeID, tokenID)
	if err != nil || !ok {
		return nil, false, err
	}
	if !policy.Active {
		return nil, false, nil
	}
	return policy.Clone(), true, nil
}

// Clear removes every store with its recipients and token policies. Intended
// for test environments.
func (r *Registry) Clear() error {
	if r == nil || r.state == nil {
		return errNilState
	}
	all, err := r.state.StoreList()
	if err != nil {
		return err
	}
	for _, store := range all {
		if err := r.state.RecipientsPut(store.ID, nil); err != nil {
			return err
		}
		policies, err := r.state.TokenPolicies(store.ID)
		if err != nil {
			return err
		}
		for _, policy := range policies {
			if err := r.state.TokenPolicyDelete(store.ID, policy.TokenID); err != nil {
				return err
			}
		}
		if err := r.state.StoreDelete(store.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) modifyPolicy(owner crypto.Address, tokenID uint64, apply func(*TokenPolicy)) error {
	store, err := r.StoreByOwner(owner)
	if err != nil {
		return err
	}
	policy, ok, err := r.state.TokenPolicyGet(store.ID, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenPolicyNotFound
	}
	updated := policy.Clone()
	apply(updated)
	return r.state.TokenPolicyPut(store.ID, updated)
}
