package storage

import "sync"

// Overlay stages writes on top of a backing Database. Reads observe staged
// writes first, then fall through to the backing store. Nothing reaches the
// backing store until Commit, which applies every staged mutation in order.
// Discarding an overlay without committing leaves the backing store untouched,
// giving callers an all-or-nothing apply path.
type Overlay struct {
	mu      sync.RWMutex
	backing Database
	writes  map[string][]byte
	deletes map[string]struct{}
	order   []string
}

// NewOverlay creates an overlay staging mutations against the given database.
func NewOverlay(backing Database) *Overlay {
	return &Overlay{
		backing: backing,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	stored := make([]byte, len(value))
	copy(stored, value)
	if _, seen := o.writes[k]; !seen {
		if _, deleted := o.deletes[k]; !deleted {
			o.order = append(o.order, k)
		}
	}
	o.writes[k] = stored
	delete(o.deletes, k)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if _, deleted := o.deletes[k]; deleted {
		return nil, ErrNotFound
	}
	if value, ok := o.writes[k]; ok {
		return value, nil
	}
	return o.backing.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	if _, seen := o.writes[k]; !seen {
		if _, deleted := o.deletes[k]; !deleted {
			o.order = append(o.order, k)
		}
	}
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Close satisfies the Database interface. The backing store stays open.
func (o *Overlay) Close() {}

// Commit applies the staged mutations to the backing store in the order they
// were first issued and resets the overlay.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range o.order {
		if value, ok := o.writes[k]; ok {
			if err := o.backing.Put([]byte(k), value); err != nil {
				return err
			}
			continue
		}
		if _, ok := o.deletes[k]; ok {
			if err := o.backing.Delete([]byte(k)); err != nil {
				return err
			}
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	o.order = nil
	return nil
}
