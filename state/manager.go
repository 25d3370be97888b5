package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"storepay/native/payments"
	"storepay/storage"
)

// Manager reads and writes the service's persisted records over a raw
// key-value database. Record keys are keccak hashes of a prefixed preimage
// and values are JSON-encoded records. Manager implements the State
// interfaces declared by the native packages.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	orderPrefix        = []byte("order:")
	orderRefPrefix     = []byte("order-ref:")
	orderListKey       = ethcrypto.Keccak256([]byte("order-list"))
	orderSeqKey        = ethcrypto.Keccak256([]byte("order-seq"))
	refundPrefix       = []byte("refund:")
	refundListPrefix   = []byte("refund-list:")
	refundSeqPrefix    = []byte("refund-seq:")
	balancePrefix      = []byte("balance:")
	tokenPrefix        = []byte("token:")
	tokenIndexPrefix   = []byte("token-index:")
	tokenListKey       = ethcrypto.Keccak256([]byte("token-list"))
	tokenSeqKey        = ethcrypto.Keccak256([]byte("token-seq"))
	storePrefix        = []byte("store:")
	storeRefPrefix     = []byte("store-ref:")
	storeOwnerPrefix   = []byte("store-owner:")
	storeListKey       = ethcrypto.Keccak256([]byte("store-list"))
	storeSeqKey        = ethcrypto.Keccak256([]byte("store-seq"))
	recipientsPrefix   = []byte("store-recipients:")
	policyPrefix       = []byte("store-policy:")
	policyListPrefix   = []byte("store-policy-list:")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte{}, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
		buf = append(buf, ':')
	}
	return ethcrypto.Keccak256(buf)
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// getJSON loads and decodes a record, reporting whether it exists.
func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return m.db.Put(key, data)
}

// --- uint64 list helpers (ordered indexes) ---

func (m *Manager) readList(key []byte) ([]uint64, error) {
	var list []uint64
	if _, err := m.getJSON(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) listAppend(key []byte, id uint64) error {
	list, err := m.readList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == id {
			return nil
		}
	}
	return m.putJSON(key, append(list, id))
}

func (m *Manager) listRemove(key []byte, id uint64) error {
	list, err := m.readList(key)
	if err != nil {
		return err
	}
	for i, existing := range list {
		if existing == id {
			updated := append(append([]uint64{}, list[:i]...), list[i+1:]...)
			if len(updated) == 0 {
				return m.db.Delete(key)
			}
			return m.putJSON(key, updated)
		}
	}
	return nil
}

func (m *Manager) nextSeq(key []byte) (uint64, error) {
	var current uint64
	if _, err := m.getJSON(key, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.putJSON(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// --- transactions ---

type txManager struct {
	Manager
	overlay *storage.Overlay
}

func (t *txManager) Commit() error {
	return t.overlay.Commit()
}

// Begin opens a staged transaction over the manager's database. Mutations
// made through the returned view reach the backing database only on Commit.
func (m *Manager) Begin() (payments.Tx, error) {
	overlay := storage.NewOverlay(m.db)
	return &txManager{Manager: Manager{db: overlay}, overlay: overlay}, nil
}
