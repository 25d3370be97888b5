package state

import (
	"fmt"

	"storepay/crypto"
	"storepay/native/payments"
	"storepay/native/tokenlist"
)

func orderKey(id uint64) []byte {
	return prefixedKey(orderPrefix, uint64Bytes(id))
}

func orderRefKey(ref string) []byte {
	return prefixedKey(orderRefPrefix, []byte(ref))
}

// OrderPut persists a pending order and maintains the orderRef index and the
// order list.
func (m *Manager) OrderPut(order *payments.Order) error {
	if order == nil {
		return fmt.Errorf("state: nil order")
	}
	if err := m.putJSON(orderKey(order.ID), order); err != nil {
		return err
	}
	if err := m.putJSON(orderRefKey(order.OrderRef), order.ID); err != nil {
		return err
	}
	return m.listAppend(orderListKey, order.ID)
}

// OrderByRef resolves a pending order through the orderRef index.
func (m *Manager) OrderByRef(ref string) (*payments.Order, bool, error) {
	var id uint64
	ok, err := m.getJSON(orderRefKey(ref), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.orderByID(id)
}

func (m *Manager) orderByID(id uint64) (*payments.Order, bool, error) {
	order := new(payments.Order)
	ok, err := m.getJSON(orderKey(id), order)
	if err != nil || !ok {
		return nil, false, err
	}
	return order, true, nil
}

// OrderDelete removes a pending order together with its index entries.
func (m *Manager) OrderDelete(id uint64) error {
	order, ok, err := m.orderByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := m.db.Delete(orderKey(id)); err != nil {
		return err
	}
	if err := m.db.Delete(orderRefKey(order.OrderRef)); err != nil {
		return err
	}
	return m.listRemove(orderListKey, id)
}

// OrderList returns every pending order in creation order.
func (m *Manager) OrderList() ([]*payments.Order, error) {
	ids, err := m.readList(orderListKey)
	if err != nil {
		return nil, err
	}
	orders := make([]*payments.Order, 0, len(ids))
	for _, id := range ids {
		order, ok, err := m.orderByID(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: order list references missing order %d", id)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// OrderNextID allocates the next order identifier.
func (m *Manager) OrderNextID() (uint64, error) {
	return m.nextSeq(orderSeqKey)
}

// --- refund balances ---

func refundKey(payer crypto.Address, id uint64) []byte {
	return prefixedKey(refundPrefix, payer.Bytes(), uint64Bytes(id))
}

func refundListKey(payer crypto.Address) []byte {
	return prefixedKey(refundListPrefix, payer.Bytes())
}

func refundSeqKey(payer crypto.Address) []byte {
	return prefixedKey(refundSeqPrefix, payer.Bytes())
}

// RefundAdd appends a refund entry for the payer. Entries are never merged;
// each refund event keeps its own record.
func (m *Manager) RefundAdd(payer crypto.Address, token tokenlist.TokenID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("state: refund amount must be positive (got %d)", amount)
	}
	id, err := m.nextSeq(refundSeqKey(payer))
	if err != nil {
		return err
	}
	entry := &payments.RefundEntry{ID: id, Token: token, Amount: amount}
	if err := m.putJSON(refundKey(payer, id), entry); err != nil {
		return err
	}
	return m.listAppend(refundListKey(payer), id)
}

// RefundsByPayer lists the payer's unclaimed refund entries in creation
// order.
func (m *Manager) RefundsByPayer(payer crypto.Address) ([]*payments.RefundEntry, error) {
	ids, err := m.readList(refundListKey(payer))
	if err != nil {
		return nil, err
	}
	entries := make([]*payments.RefundEntry, 0, len(ids))
	for _, id := range ids {
		entry := new(payments.RefundEntry)
		ok, err := m.getJSON(refundKey(payer, id), entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: refund list references missing entry %d", id)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RefundDelete removes one claimed refund entry.
func (m *Manager) RefundDelete(payer crypto.Address, id uint64) error {
	if err := m.db.Delete(refundKey(payer, id)); err != nil {
		return err
	}
	return m.listRemove(refundListKey(payer), id)
}
