package state

import (
	"fmt"

	"storepay/crypto"
	"storepay/native/tokenlist"
)

func balanceKey(addr crypto.Address, token tokenlist.TokenID) []byte {
	return prefixedKey(balancePrefix, []byte(token.String()), addr.Bytes())
}

// Balance returns the account's balance for one token in minor units.
func (m *Manager) Balance(addr crypto.Address, token tokenlist.TokenID) (int64, error) {
	var balance int64
	if _, err := m.getJSON(balanceKey(addr, token), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit adds value to an account balance. Used when deposits land in the
// custody account.
func (m *Manager) Credit(addr crypto.Address, token tokenlist.TokenID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("state: credit amount must be positive (got %d)", amount)
	}
	balance, err := m.Balance(addr, token)
	if err != nil {
		return err
	}
	return m.putJSON(balanceKey(addr, token), balance+amount)
}

// Transfer moves value between two accounts. It fails without touching
// either balance when the amount is not positive or the source balance is
// insufficient, making each call all-or-nothing.
func (m *Manager) Transfer(from, to crypto.Address, token tokenlist.TokenID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("state: transfer amount must be positive (got %d)", amount)
	}
	if from == to {
		return fmt.Errorf("state: transfer source and destination are the same account")
	}
	fromBalance, err := m.Balance(from, token)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("state: insufficient balance: %s holds %d %s, need %d", from, fromBalance, token, amount)
	}
	toBalance, err := m.Balance(to, token)
	if err != nil {
		return err
	}
	if err := m.putJSON(balanceKey(from, token), fromBalance-amount); err != nil {
		return err
	}
	return m.putJSON(balanceKey(to, token), toBalance+amount)
}
