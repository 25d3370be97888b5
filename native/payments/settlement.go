package payments

import (
	"fmt"

	"storepay/crypto"
	"storepay/native/stores"
)

// SplitInput carries everything the settlement computation needs: the
// escrowed amount, the token's platform fee policy, the store's slippage
// bounds, and the store's weighted recipient list.
type SplitInput struct {
	Amount           int64
	SystemFeePercent float64
	Slippage         float64
	MinSlippage      float64
	MaxSlippage      float64
	Recipients       []stores.Recipient
}

// Payout is one recipient's share of the distributable amount.
type Payout struct {
	Account crypto.Address `json:"account"`
	Weight  uint8          `json:"weight"`
	Amount  int64          `json:"amount"`
}

// Plan is the exact outcome of splitting one deposit. Conservation holds by
// construction: Fee + sum(Payouts) + Remainder == Total.
type Plan struct {
	Total     int64   `json:"total"`
	Fee       int64   `json:"fee"`
	Slippage  float64 `json:"slippage"`
	Payouts   []Payout `json:"payouts"`
	Remainder int64   `json:"remainder"`
}

// Transfer is one line item of a plan, issued through the value transfer
// primitive in plan order.
type Transfer struct {
	To     crypto.Address `json:"to"`
	Amount int64          `json:"amount"`
	Memo   string         `json:"memo"`
}

const (
	memoSystemFee = "System fee."
	memoRemainder = "Remainder."
)

// ComputeSplit turns one deposited amount into a fee, per-recipient payouts,
// and a remainder. It is a pure function of its input and holds no state.
//
// The platform slippage is clamped into the store's bounds rather than
// rejected: a store can narrow the platform value but an out-of-range value
// is never an error. The split value truncates toward zero at every division,
// and the remainder left over by truncation goes to the fee account, so the
// deposited amount is conserved exactly.
func ComputeSplit(in SplitInput) (*Plan, error) {
	slippage := clamp(in.Slippage, in.MinSlippage, in.MaxSlippage)
	totalPercentage := in.SystemFeePercent + slippage + 100.0

	unitValue := int64(float64(in.Amount) / totalPercentage)
	fee := int64(float64(unitValue) * in.SystemFeePercent)
	if fee <= 0 {
		return nil, fmt.Errorf("%w: fee %d, amount %d, total percentage %.4f, split value %d",
			ErrFeeCalculation, fee, in.Amount, totalPercentage, unitValue)
	}
	distributable := in.Amount - fee

	weightSum := 0
	for _, recipient := range in.Recipients {
		weightSum += int(recipient.Weight)
	}
	if weightSum == 0 {
		return nil, ErrNoRecipients
	}

	perWeightUnit := distributable / int64(weightSum)
	plan := &Plan{
		Total:    in.Amount,
		Fee:      fee,
		Slippage: slippage,
	}
	distributed := int64(0)
	for _, recipient := range in.Recipients {
		if recipient.Weight == 0 {
			continue
		}
		payout := perWeightUnit * int64(recipient.Weight)
		if payout <= 0 {
			return nil, fmt.Errorf("%w: recipient %s weight %d payout %d",
				ErrNegativePayout, recipient.Account, recipient.Weight, payout)
		}
		plan.Payouts = append(plan.Payouts, Payout{
			Account: recipient.Account,
			Weight:  recipient.Weight,
			Amount:  payout,
		})
		distributed += payout
	}

	plan.Remainder = distributable - distributed
	if plan.Remainder < 0 {
		return nil, fmt.Errorf("%w: distributable %d, distributed %d",
			ErrDistributionOverdrawn, distributable, distributed)
	}
	return plan, nil
}

// Transfers lays out the plan as ordered line items: the system fee first,
// then each recipient in registration order, then any truncation remainder
// back to the fee account.
func (p *Plan) Transfers(feeAccount crypto.Address, memo string) []Transfer {
	transfers := make([]Transfer, 0, len(p.Payouts)+2)
	transfers = append(transfers, Transfer{To: feeAccount, Amount: p.Fee, Memo: memoSystemFee})
	for _, payout := range p.Payouts {
		transfers = append(transfers, Transfer{To: payout.Account, Amount: payout.Amount, Memo: memo})
	}
	if p.Remainder > 0 {
		transfers = append(transfers, Transfer{To: feeAccount, Amount: p.Remainder, Memo: memoRemainder})
	}
	return transfers
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
