package reconcile

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftsync/internal/model"
)

const usdc = "0x00000000000000000000000000000000000000d1"

func fill(logIndex uint64, price int64, currency string) model.FillEvent {
	return model.FillEvent{
		Currency:        currency,
		CurrencyPrice:   big.NewInt(price),
		Price:           big.NewInt(price),
		Amount:          big.NewInt(1),
		BaseEventParams: model.BaseEventParams{LogIndex: logIndex},
	}
}

func pay(logIndex uint64, amount int64, token string) model.Payment {
	return model.Payment{Token: token, Amount: big.NewInt(amount), LogIndex: logIndex}
}

func amounts(ps []model.Payment) []int64 {
	out := make([]int64, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Amount.Int64())
	}
	return out
}

func TestReconcileIndependentFills(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress), fill(7, 50, model.ZeroAddress)}
	payments := []model.Payment{pay(6, 100, model.ZeroAddress), pay(8, 50, model.ZeroAddress)}

	res := Reconcile(fills, payments)
	require.Len(t, res.Chunked, 2)
	assert.False(t, res.HasMultiple)
	assert.True(t, res.IsReliable)
	assert.Equal(t, []int64{100}, amounts(res.Chunked[0].RelatedPayments))
	assert.Equal(t, []int64{50}, amounts(res.Chunked[1].RelatedPayments))
	for _, a := range res.Chunked {
		assert.True(t, a.IsReliable)
		assert.False(t, a.HasMultiple)
	}
}

func TestReconcileCombinedPayment(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress), fill(7, 50, model.ZeroAddress)}
	payments := []model.Payment{pay(6, 150, model.ZeroAddress)}

	res := Reconcile(fills, payments)
	assert.True(t, res.HasMultiple)
	assert.True(t, res.IsReliable)
	for _, a := range res.Chunked {
		assert.True(t, a.HasMultiple)
		assert.True(t, a.IsReliable)
		assert.Equal(t, []int64{150}, amounts(a.RelatedPayments))
	}
}

func TestReconcileBundleSharesPayments(t *testing.T) {
	fills := []model.FillEvent{
		fill(2, 10, model.ZeroAddress),
		fill(3, 20, model.ZeroAddress),
		fill(4, 30, model.ZeroAddress),
	}
	payments := []model.Payment{pay(5, 40, model.ZeroAddress), pay(6, 20, model.ZeroAddress)}

	res := Reconcile(fills, payments)
	require.Len(t, res.Chunked, 3)
	assert.True(t, res.HasMultiple)
	assert.True(t, res.IsReliable)

	first := res.Chunked[0].RelatedPayments
	require.Len(t, first, 2)
	for _, a := range res.Chunked[1:] {
		require.Len(t, a.RelatedPayments, len(first))
		assert.Same(t, &first[0], &a.RelatedPayments[0], "bundle members share one slice")
	}
}

func TestReconcileExtraPaymentFlipsReliability(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress), fill(7, 50, model.ZeroAddress)}
	payments := []model.Payment{
		pay(6, 100, model.ZeroAddress),
		pay(8, 50, model.ZeroAddress),
		pay(9, 3, model.ZeroAddress),
	}

	res := Reconcile(fills, payments)
	assert.False(t, res.IsReliable)
	assert.False(t, res.HasMultiple)

	assert.True(t, res.Chunked[0].IsReliable)
	assert.Equal(t, []int64{100}, amounts(res.Chunked[0].RelatedPayments))
	assert.False(t, res.Chunked[1].IsReliable)
	assert.Equal(t, []int64{50, 3}, amounts(res.Chunked[1].RelatedPayments))
}

func TestReconcileNoPayments(t *testing.T) {
	res := Reconcile([]model.FillEvent{fill(1, 100, model.ZeroAddress)}, nil)
	require.Len(t, res.Chunked, 1)
	assert.Empty(t, res.Chunked[0].RelatedPayments)
	assert.True(t, res.Chunked[0].IsReliable)
	assert.True(t, res.IsReliable)
	assert.False(t, res.HasMultiple)
}

func TestReconcileIgnoresPaymentsWithoutFill(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress)}
	payments := []model.Payment{
		pay(1, 999, model.ZeroAddress),
		pay(6, 100, model.ZeroAddress),
	}
	res := Reconcile(fills, payments)
	assert.Equal(t, []int64{100}, amounts(res.Chunked[0].RelatedPayments))
	assert.True(t, res.IsReliable)
}

func TestReconcilePartitionsByCurrency(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress), fill(7, 70, usdc)}
	payments := []model.Payment{
		pay(6, 100, model.ZeroAddress),
		pay(8, 70, "0x00000000000000000000000000000000000000D1"),
	}

	res := Reconcile(fills, payments)
	assert.True(t, res.IsReliable)
	assert.False(t, res.HasMultiple)
	assert.Equal(t, []int64{100}, amounts(res.Chunked[0].RelatedPayments))
	assert.Equal(t, []int64{70}, amounts(res.Chunked[1].RelatedPayments))
}

func TestReconcileInterleavedCurrenciesUnreliable(t *testing.T) {
	fills := []model.FillEvent{
		fill(5, 100, model.ZeroAddress),
		fill(6, 70, usdc),
		fill(9, 50, model.ZeroAddress),
	}
	// eth and usdc payments both sit between the eth fills
	payments := []model.Payment{
		pay(7, 70, usdc),
		pay(8, 100, model.ZeroAddress),
		pay(10, 50, model.ZeroAddress),
	}

	res := Reconcile(fills, payments)
	assert.False(t, res.Chunked[0].IsReliable)
	assert.Equal(t, []int64{100}, amounts(res.Chunked[0].RelatedPayments))
	assert.True(t, res.Chunked[2].IsReliable)
	assert.False(t, res.IsReliable)
}

func TestReconcileNativePaymentPositions(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress), fill(6, 40, model.ZeroAddress)}
	payments := []model.Payment{
		{Token: model.ZeroAddress, Amount: big.NewInt(100), LogIndex: 5, AfterLog: true},
		{Token: model.ZeroAddress, Amount: big.NewInt(40), LogIndex: 6, AfterLog: true},
		// precedes the log at 5, so it belongs to no fill
		{Token: model.ZeroAddress, Amount: big.NewInt(1), LogIndex: 5},
	}

	res := Reconcile(fills, payments)
	assert.True(t, res.IsReliable)
	assert.Equal(t, []int64{100}, amounts(res.Chunked[0].RelatedPayments))
	assert.Equal(t, []int64{40}, amounts(res.Chunked[1].RelatedPayments))
}

func TestReconcileTrailingFillsWithoutCoverFormOwnGroup(t *testing.T) {
	fills := []model.FillEvent{fill(1, 10, model.ZeroAddress), fill(3, 5, model.ZeroAddress)}
	payments := []model.Payment{pay(2, 10, model.ZeroAddress)}

	res := Reconcile(fills, payments)
	assert.False(t, res.HasMultiple)
	assert.Equal(t, []int64{10}, amounts(res.Chunked[0].RelatedPayments))
	assert.Empty(t, res.Chunked[1].RelatedPayments)
	assert.True(t, res.Chunked[1].IsReliable)
}

func TestReconcileUnrelatedFeeKeepsNeighbourAttribution(t *testing.T) {
	fills := []model.FillEvent{fill(5, 100, model.ZeroAddress), fill(7, 50, model.ZeroAddress)}

	base := Reconcile(fills, []model.Payment{pay(6, 100, model.ZeroAddress)})
	require.Len(t, base.Chunked, 2)
	assert.Empty(t, base.Chunked[1].RelatedPayments)
	assert.True(t, base.Chunked[1].IsReliable)

	// a fee that settles neither fill stays with the first one
	res := Reconcile(fills, []model.Payment{pay(6, 100, model.ZeroAddress), pay(6, 70, model.ZeroAddress)})
	require.Len(t, res.Chunked, 2)
	assert.False(t, res.IsReliable)
	assert.False(t, res.HasMultiple)
	assert.Equal(t, []int64{100, 70}, amounts(res.Chunked[0].RelatedPayments))
	assert.False(t, res.Chunked[0].IsReliable)
	assert.Empty(t, res.Chunked[1].RelatedPayments)
	assert.True(t, res.Chunked[1].IsReliable)
	assert.False(t, res.Chunked[1].HasMultiple)
}
