package tokenlist

import "errors"

var errNilState = errors.New("tokenlist: state not configured")

// State is the persistence surface the registry operates against. The state
// backend maintains the (issuer, symbol) index and the entry list alongside
// each put/delete.
type State interface {
	TokenPut(*Entry) error
	TokenByID(id uint64) (*Entry, bool, error)
	TokenByIdentifier(token TokenID) (*Entry, bool, error)
	TokenDelete(id uint64) error
	TokenList() ([]*Entry, error)
	TokenNextID() (uint64, error)
}

// Cascade receives removal notifications so dependent registries can drop
// per-store policies referencing a delisted token. Cross-registry consistency
// is an explicit reconciliation call, never an implicit side effect.
type Cascade interface {
	RemoveSystemToken(id uint64) error
}

// Registry curates the global token whitelist. All writes are restricted to
// the platform operator at the transport layer.
type Registry struct {
	state   State
	cascade Cascade
}

// NewRegistry creates a whitelist registry over the supplied state backend.
func NewRegistry(state State) *Registry {
	return &Registry{state: state}
}

// SetCascade wires the registry that must be reconciled when tokens are
// removed from the whitelist.
func (r *Registry) SetCascade(c Cascade) { r.cascade = c }

// Register adds a token to the whitelist. The (issuer, symbol) pair must be
// unique and the fee percentage non-negative. Platform slippage defaults to
// zero and is adjusted separately via SetSlippage.
func (r *Registry) Register(token TokenID, imageURL string, systemFeePercent float64) (*Entry, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	normalized, err := token.Normalize()
	if err != nil {
		return nil, err
	}
	if systemFeePercent < 0 {
		return nil, ErrNegativeFee
	}
	if _, ok, err := r.state.TokenByIdentifier(normalized); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyWhitelisted
	}
	id, err := r.state.TokenNextID()
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		ID:               id,
		Token:            normalized,
		ImageURL:         imageURL,
		SystemFeePercent: systemFeePercent,
		Slippage:         0,
	}
	if err := r.state.TokenPut(entry); err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// SetSystemFee updates the platform fee percentage for an entry.
func (r *Registry) SetSystemFee(id uint64, systemFeePercent float64) error {
	if systemFeePercent < 0 {
		return ErrNegativeFee
	}
	return r.modify(id, func(entry *Entry) {
		entry.SystemFeePercent = systemFeePercent
	})
}

// SetSlippage updates the platform-level slippage value for an entry.
func (r *Registry) SetSlippage(id uint64, slippage float64) error {
	if slippage < 0 {
		return ErrNegativeSlippage
	}
	return r.modify(id, func(entry *Entry) {
		entry.Slippage = slippage
	})
}

// SetImageURL updates the display metadata for an entry.
func (r *Registry) SetImageURL(id uint64, imageURL string) error {
	return r.modify(id, func(entry *Entry) {
		entry.ImageURL = imageURL
	})
}

// Remove delists a token and reconciles dependent store policies.
func (r *Registry) Remove(id uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if _, ok, err := r.state.TokenByID(id); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	if err := r.state.TokenDelete(id); err != nil {
		return err
	}
	if r.cascade != nil {
		return r.cascade.RemoveSystemToken(id)
	}
	return nil
}

// Clear removes every whitelist entry. Intended for test environments.
func (r *Registry) Clear() error {
	if r == nil || r.state == nil {
		return errNilState
	}
	entries, err := r.state.TokenList()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := r.state.TokenDelete(entry.ID); err != nil {
			return err
		}
		if r.cascade != nil {
			if err := r.cascade.RemoveSystemToken(entry.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup resolves a whitelist entry by token identifier.
func (r *Registry) Lookup(token TokenID) (*Entry, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	normalized, err := token.Normalize()
	if err != nil {
		return nil, false, err
	}
	entry, ok, err := r.state.TokenByIdentifier(normalized)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Clone(), true, nil
}

// Get resolves a whitelist entry by its identifier.
func (r *Registry) Get(id uint64) (*Entry, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	entry, ok, err := r.state.TokenByID(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Clone(), true, nil
}

// List returns every whitelist entry in registration order.
func (r *Registry) List() ([]*Entry, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	entries, err := r.state.TokenList()
	if err != nil {
		return nil, err
	}
	cloned := make([]*Entry, len(entries))
	for i, entry := range entries {
		cloned[i] = entry.Clone()
	}
	return cloned, nil
}

func (r *Registry) modify(id uint64, apply func(*Entry)) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	entry, ok, err := r.state.TokenByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	updated := entry.Clone()
	apply(updated)
	return r.state.TokenPut(updated)
}
