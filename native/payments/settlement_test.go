package payments

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storepay/crypto"
	"storepay/native/stores"
)

func testAccount(fill byte) crypto.Address {
	var addr crypto.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestComputeSplitPinnedScenario(t *testing.T) {
	// 1,000,000 minor units, 2% system fee, slippage clamped to 0, weights 1 and 3:
	// totalPercentage = 102.0, unitValue = trunc(1,000,000/102.0) = 9803,
	// fee = trunc(9803*2.0) = 19606, distributable = 980394,
	// perWeightUnit = 980394/4 = 245098, payouts 245098 and 735294, remainder 2.
	plan, err := ComputeSplit(SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 2.0,
		Slippage:         0,
		MinSlippage:      0,
		MaxSlippage:      100,
		Recipients: []stores.Recipient{
			{Account: testAccount(0x01), Weight: 1},
			{Account: testAccount(0x02), Weight: 3},
		},
	})
	require.NoError(t, err)

	require.Equal(t, int64(19606), plan.Fee)
	require.Len(t, plan.Payouts, 2)
	require.Equal(t, int64(245098), plan.Payouts[0].Amount)
	require.Equal(t, int64(735294), plan.Payouts[1].Amount)
	require.Equal(t, int64(2), plan.Remainder)
	require.Equal(t, 0.0, plan.Slippage)
}

func TestComputeSplitConservation(t *testing.T) {
	cases := []struct {
		name    string
		amount  int64
		fee     float64
		slip    float64
		weights []uint8
	}{
		{"even split", 10_200, 2.0, 0, []uint8{1}},
		{"three recipients", 1_000_000, 2.0, 0, []uint8{1, 3, 7}},
		{"slippage applied", 5_000_000, 1.5, 3.25, []uint8{10, 20}},
		{"large amount", 9_876_543_210, 0.75, 12.5, []uint8{255, 1, 17}},
		{"zero weight mixed in", 750_000, 5.0, 0, []uint8{0, 2, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recipients := make([]stores.Recipient, len(tc.weights))
			for i, weight := range tc.weights {
				recipients[i] = stores.Recipient{Account: testAccount(byte(i + 1)), Weight: weight}
			}
			plan, err := ComputeSplit(SplitInput{
				Amount:           tc.amount,
				SystemFeePercent: tc.fee,
				Slippage:         tc.slip,
				MinSlippage:      0,
				MaxSlippage:      100,
				Recipients:       recipients,
			})
			require.NoError(t, err)

			distributed := int64(0)
			for _, payout := range plan.Payouts {
				require.Positive(t, payout.Amount)
				distributed += payout.Amount
			}
			require.Positive(t, plan.Fee)
			require.GreaterOrEqual(t, plan.Remainder, int64(0))
			require.Equal(t, tc.amount, plan.Fee+distributed+plan.Remainder,
				"value must be conserved exactly")
		})
	}
}

func TestComputeSplitClampsSlippage(t *testing.T) {
	input := SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 2.0,
		Slippage:         40,
		MinSlippage:      5,
		MaxSlippage:      20,
		Recipients:       []stores.Recipient{{Account: testAccount(0x01), Weight: 1}},
	}
	plan, err := ComputeSplit(input)
	require.NoError(t, err)
	require.Equal(t, 20.0, plan.Slippage)

	input.Slippage = 1
	plan, err = ComputeSplit(input)
	require.NoError(t, err)
	require.Equal(t, 5.0, plan.Slippage)

	input.Slippage = 10
	plan, err = ComputeSplit(input)
	require.NoError(t, err)
	require.Equal(t, 10.0, plan.Slippage)
}

func TestComputeSplitSkipsZeroWeightRecipients(t *testing.T) {
	plan, err := ComputeSplit(SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
		Recipients: []stores.Recipient{
			{Account: testAccount(0x01), Weight: 0},
			{Account: testAccount(0x02), Weight: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Payouts, 1)
	require.Equal(t, testAccount(0x02), plan.Payouts[0].Account)
}

func TestComputeSplitNoRecipients(t *testing.T) {
	_, err := ComputeSplit(SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
	})
	require.ErrorIs(t, err, ErrNoRecipients)

	_, err = ComputeSplit(SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
		Recipients: []stores.Recipient{
			{Account: testAccount(0x01), Weight: 0},
			{Account: testAccount(0x02), Weight: 0},
		},
	})
	require.ErrorIs(t, err, ErrNoRecipients)
}

func TestComputeSplitFeeCalculationError(t *testing.T) {
	// A zero fee percentage always yields a zero fee.
	_, err := ComputeSplit(SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 0,
		MaxSlippage:      100,
		Recipients:       []stores.Recipient{{Account: testAccount(0x01), Weight: 1}},
	})
	require.ErrorIs(t, err, ErrFeeCalculation)

	// A tiny amount truncates the split value to zero.
	_, err = ComputeSplit(SplitInput{
		Amount:           50,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
		Recipients:       []stores.Recipient{{Account: testAccount(0x01), Weight: 1}},
	})
	require.ErrorIs(t, err, ErrFeeCalculation)
}

func TestComputeSplitNegativePayout(t *testing.T) {
	// Distributable below the weight sum truncates per-weight units to zero.
	_, err := ComputeSplit(SplitInput{
		Amount:           200,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
		Recipients: []stores.Recipient{
			{Account: testAccount(0x01), Weight: 255},
			{Account: testAccount(0x02), Weight: 255},
		},
	})
	require.ErrorIs(t, err, ErrNegativePayout)
}

func TestPlanTransfersOrder(t *testing.T) {
	feeAccount := testAccount(0xFE)
	plan, err := ComputeSplit(SplitInput{
		Amount:           1_000_000,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
		Recipients: []stores.Recipient{
			{Account: testAccount(0x01), Weight: 1},
			{Account: testAccount(0x02), Weight: 3},
		},
	})
	require.NoError(t, err)

	transfers := plan.Transfers(feeAccount, "order memo")
	require.Len(t, transfers, 4)
	require.Equal(t, feeAccount, transfers[0].To)
	require.Equal(t, plan.Fee, transfers[0].Amount)
	require.Equal(t, testAccount(0x01), transfers[1].To)
	require.Equal(t, "order memo", transfers[1].Memo)
	require.Equal(t, testAccount(0x02), transfers[2].To)
	require.Equal(t, feeAccount, transfers[3].To)
	require.Equal(t, plan.Remainder, transfers[3].Amount)
}

func TestPlanTransfersNoRemainderLine(t *testing.T) {
	// 10,200 at 2% with one weight divides exactly: fee 200, payout 10,000.
	plan, err := ComputeSplit(SplitInput{
		Amount:           10_200,
		SystemFeePercent: 2.0,
		MaxSlippage:      100,
		Recipients:       []stores.Recipient{{Account: testAccount(0x01), Weight: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(200), plan.Fee)
	require.Equal(t, int64(10_000), plan.Payouts[0].Amount)
	require.Equal(t, int64(0), plan.Remainder)

	transfers := plan.Transfers(testAccount(0xFE), "memo")
	require.Len(t, transfers, 2)
}
