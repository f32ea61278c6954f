package invoicing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func reasons(list ...Reason) ResolveReason {
	byID := make(map[int64]Reason, len(list))
	for _, r := range list {
		byID[r.ID] = r
	}
	return func(ctx context.Context, id int64) (Reason, error) {
		r, ok := byID[id]
		if !ok {
			return Reason{}, shared.NotFound("add-and-subtract reason", id)
		}
		return r, nil
	}
}

var (
	discount = Reason{ID: 1, Title: "Discount", Operation: OperationSubtract}
	shipping = Reason{ID: 2, Title: "Shipping", Operation: OperationAdd}
	tax      = Reason{ID: 3, Title: "Tax", Operation: OperationAdd, DefaultValue: dec("10")}
)

func TestCalculateSubtractThenAdd(t *testing.T) {
	totals, err := Calculate(context.Background(),
		[]Line{{Count: 10, Price: dec("100")}},
		[]Adjustment{{ReasonID: 2, Value: dec("150")}, {ReasonID: 1, Value: dec("10")}},
		reasons(discount, shipping))
	require.NoError(t, err)
	require.True(t, totals.Sum.Equal(dec("1000")))
	require.True(t, totals.Adjustments[1].Amount.Equal(dec("100")))
	require.True(t, totals.Adjustments[0].Amount.Equal(dec("150")))
	require.True(t, totals.Total.Equal(dec("1050")))
}

func TestCalculatePercentDiscountThenFixedFee(t *testing.T) {
	totals, err := Calculate(context.Background(),
		[]Line{{Count: 4, Price: dec("250")}},
		[]Adjustment{{ReasonID: 2, Value: dec("50"), Unit: UnitFixed}, {ReasonID: 1, Value: dec("10")}},
		reasons(discount, shipping))
	require.NoError(t, err)
	require.True(t, totals.Sum.Equal(dec("1000")))
	require.True(t, totals.Adjustments[1].Amount.Equal(dec("100")))
	require.True(t, totals.Sum.Sub(totals.Adjustments[1].Amount).Equal(dec("900")))
	require.True(t, totals.Adjustments[0].Amount.Equal(dec("50")))
	require.True(t, totals.Total.Equal(dec("950")))
}

func TestCalculateAddPercentUsesDiscountedTotal(t *testing.T) {
	totals, err := Calculate(context.Background(),
		[]Line{{Count: 4, Price: dec("250")}},
		[]Adjustment{{ReasonID: 1, Value: dec("10")}, {ReasonID: 2, Value: dec("50")}},
		reasons(discount, shipping))
	require.NoError(t, err)
	require.True(t, totals.Adjustments[0].Amount.Equal(dec("100")))
	require.True(t, totals.Adjustments[1].Amount.Equal(dec("450")))
	require.True(t, totals.Total.Equal(dec("1350")))
}

func TestCalculateSubtractPercentsUseOriginalSum(t *testing.T) {
	totals, err := Calculate(context.Background(),
		[]Line{{Count: 1, Price: dec("1000")}},
		[]Adjustment{{ReasonID: 1, Value: dec("10")}, {ReasonID: 1, Value: dec("20")}},
		reasons(discount))
	require.NoError(t, err)
	require.True(t, totals.Adjustments[0].Amount.Equal(dec("100")))
	require.True(t, totals.Adjustments[1].Amount.Equal(dec("200")))
	require.True(t, totals.Total.Equal(dec("700")))
}

func TestAdjustmentAmountBoundary(t *testing.T) {
	base := dec("1000")
	require.True(t, AdjustmentAmount(dec("100"), base, UnitAuto).Equal(dec("1000")))
	require.True(t, AdjustmentAmount(dec("101"), base, UnitAuto).Equal(dec("101")))
	require.True(t, AdjustmentAmount(dec("0.5"), base, UnitAuto).Equal(dec("5")))
	require.True(t, AdjustmentAmount(dec("12.5"), dec("0.99"), UnitAuto).Equal(dec("0.12")))
	require.True(t, AdjustmentAmount(dec("50"), base, UnitFixed).Equal(dec("50")))
	require.True(t, AdjustmentAmount(dec("150"), base, UnitPercent).Equal(dec("1500")))
}

func TestCalculateRoundsHalfEven(t *testing.T) {
	totals, err := Calculate(context.Background(),
		[]Line{{Count: 1, Price: dec("0.125")}, {Count: 1, Price: dec("0.135")}},
		nil, nil)
	require.NoError(t, err)
	require.True(t, totals.Sum.Equal(dec("0.26")))
}

func TestCalculateUsesReasonDefaultValue(t *testing.T) {
	totals, err := Calculate(context.Background(),
		[]Line{{Count: 2, Price: dec("50")}},
		[]Adjustment{{ReasonID: 3}},
		reasons(tax))
	require.NoError(t, err)
	require.True(t, totals.Adjustments[0].Value.Equal(dec("10")))
	require.True(t, totals.Adjustments[0].Amount.Equal(dec("10")))
	require.True(t, totals.Total.Equal(dec("110")))
}

func TestCalculateRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	_, err := Calculate(ctx, []Line{{Count: -1, Price: dec("1")}}, nil, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Calculate(ctx, []Line{{Count: 1, Price: dec("-1")}}, nil, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Calculate(ctx, []Line{{Count: 1, Price: dec("10")}}, []Adjustment{{ReasonID: 1, Value: dec("-5")}}, reasons(discount))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Calculate(ctx, []Line{{Count: 1, Price: dec("10")}}, []Adjustment{{ReasonID: 9, Value: dec("5")}}, reasons(discount))
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = Calculate(ctx, []Line{{Count: 1, Price: dec("10")}}, []Adjustment{{ReasonID: 1, Value: dec("500")}}, reasons(discount))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Calculate(ctx, []Line{{Count: 1, Price: dec("10")}}, []Adjustment{{ReasonID: 1, Value: dec("5"), Unit: "basis"}}, reasons(discount))
	require.ErrorIs(t, err, shared.ErrValidation)
}
