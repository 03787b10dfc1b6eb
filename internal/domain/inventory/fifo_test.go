package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func batch(qty string, expiry *time.Time, stockIn string) Batch {
	q := types.MustQuantity(qty)
	return Batch{
		ID:               id.New(),
		Quantity:         q,
		OriginalQuantity: q,
		ExpiryDate:       expiry,
		StockInDate:      day(stockIn),
	}
}

func TestCompareFIFO(t *testing.T) {
	tests := []struct {
		name string
		a, b Batch
		want int
	}{
		{
			name: "earlier expiry first",
			a:    batch("1", dayPtr("2024-01-10"), "2024-01-05"),
			b:    batch("1", dayPtr("2024-01-15"), "2024-01-01"),
			want: -1,
		},
		{
			name: "expiry before no expiry",
			a:    batch("1", nil, "2023-01-01"),
			b:    batch("1", dayPtr("2030-01-01"), "2024-01-01"),
			want: 1,
		},
		{
			name: "same expiry falls back to stock-in date",
			a:    batch("1", dayPtr("2024-01-10"), "2024-01-02"),
			b:    batch("1", dayPtr("2024-01-10"), "2024-01-01"),
			want: 1,
		},
		{
			name: "no expiry on both uses stock-in date",
			a:    batch("1", nil, "2024-01-01"),
			b:    batch("1", nil, "2024-01-02"),
			want: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareFIFO(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareFIFO(tt.b, tt.a))
		})
	}
}

func TestCompareFIFO_IDTieBreak(t *testing.T) {
	a := batch("1", dayPtr("2024-01-10"), "2024-01-01")
	b := batch("1", dayPtr("2024-01-10"), "2024-01-01")

	// UUIDv7: a was generated first.
	assert.Equal(t, -1, CompareFIFO(a, b))
	assert.Equal(t, 0, CompareFIFO(a, a))
}

func TestSortFIFO(t *testing.T) {
	b1 := batch("10", dayPtr("2024-01-10"), "2024-01-01")
	b2 := batch("5", dayPtr("2024-01-15"), "2024-01-02")
	b3 := batch("8", nil, "2023-12-01")

	batches := []Batch{b3, b2, b1}
	SortFIFO(batches)

	assert.Equal(t, []id.ID{b1.ID, b2.ID, b3.ID}, []id.ID{batches[0].ID, batches[1].ID, batches[2].ID})
}

func TestPlanAllocation(t *testing.T) {
	b1 := batch("10", dayPtr("2024-01-10"), "2024-01-01")
	b2 := batch("5", dayPtr("2024-01-15"), "2024-01-02")
	b3 := batch("8", nil, "2023-12-01")
	candidates := []Batch{b1, b2, b3}

	t.Run("spans batches", func(t *testing.T) {
		plan, remaining := PlanAllocation(candidates, types.NewQuantity(12))

		require.Len(t, plan, 2)
		assert.True(t, remaining.IsZero())
		assert.Equal(t, b1.ID, plan[0].Batch.ID)
		assert.Equal(t, types.NewQuantity(10), plan[0].Take)
		assert.Equal(t, b2.ID, plan[1].Batch.ID)
		assert.Equal(t, types.NewQuantity(2), plan[1].Take)
	})

	t.Run("exact drain", func(t *testing.T) {
		plan, remaining := PlanAllocation(candidates, types.NewQuantity(23))

		require.Len(t, plan, 3)
		assert.True(t, remaining.IsZero())
		assert.Equal(t, types.NewQuantity(8), plan[2].Take)
	})

	t.Run("shortfall", func(t *testing.T) {
		plan, remaining := PlanAllocation(candidates, types.NewQuantity(25))

		assert.Len(t, plan, 3)
		assert.Equal(t, types.NewQuantity(2), remaining)
	})

	t.Run("skips empty batches", func(t *testing.T) {
		empty := batch("4", dayPtr("2024-01-01"), "2023-12-01")
		empty.Quantity = 0

		plan, remaining := PlanAllocation([]Batch{empty, b2}, types.MustQuantity("0.5"))

		require.Len(t, plan, 1)
		assert.True(t, remaining.IsZero())
		assert.Equal(t, b2.ID, plan[0].Batch.ID)
	})
}

func TestNewBatch(t *testing.T) {
	itemID := id.New()
	lineID := id.New()
	expiry := time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC)

	b, err := NewBatch(itemID, types.NewQuantity(3), &expiry, day("2024-02-01"), lineID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, b.OriginalQuantity, b.Quantity)
	assert.Equal(t, day("2024-03-01"), *b.ExpiryDate)
	assert.Equal(t, lineID, b.TransactionItemID)

	_, err = NewBatch(itemID, 0, nil, day("2024-02-01"), lineID, time.Now())
	assert.Error(t, err)

	_, err = NewBatch(itemID, types.NewQuantity(1), nil, time.Time{}, lineID, time.Now())
	assert.Error(t, err)
}

func TestTransactionItem_CheckBalance(t *testing.T) {
	line := TransactionItem{
		Quantity:       types.NewQuantity(2),
		QuantityBefore: types.NewQuantity(10),
		QuantityAfter:  types.NewQuantity(8),
	}
	assert.NoError(t, line.CheckBalance(TransactionOut))
	assert.Error(t, line.CheckBalance(TransactionIn))
}
