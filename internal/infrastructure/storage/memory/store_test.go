package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

func seedItem(t *testing.T, s *Store) inventory.Item {
	t.Helper()
	item := &inventory.Item{ID: id.New(), Name: "Flour", Unit: "kg"}
	require.NoError(t, s.UpsertItem(context.Background(), item))
	return *item
}

func TestRunInTransaction_RollsBack(t *testing.T) {
	s := New()
	item := seedItem(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.SetItemQuantity(ctx, item.ID, types.NewQuantity(3), time.Now()))
		require.NoError(t, s.RecordTransaction(ctx, inventory.Transaction{ID: id.New(), Type: inventory.TransactionIn}))
		_, err := s.Next(ctx, "IN", time.Now())
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.IsZero())
	assert.Equal(t, 0, s.TransactionCount())

	number, err := s.Next(ctx, "IN", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00001", number)
}

func TestRunInTransaction_Nested(t *testing.T) {
	s := New()
	item := seedItem(t, s)

	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.SetItemQuantity(ctx, item.ID, types.NewQuantity(1), time.Now())
		})
	})
	require.NoError(t, err)

	got, err := s.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(1), got.Quantity)
}

func TestDecrementBatch(t *testing.T) {
	s := New()
	item := seedItem(t, s)
	ctx := context.Background()

	b, err := inventory.NewBatch(item.ID, types.NewQuantity(5), nil, time.Now(), id.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateBatch(ctx, b))

	updated, err := s.DecrementBatch(ctx, b.ID, types.NewQuantity(2))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(3), updated.Quantity)
	assert.Equal(t, types.NewQuantity(5), updated.OriginalQuantity)

	_, err = s.DecrementBatch(ctx, b.ID, types.NewQuantity(4))
	assert.True(t, apperror.IsInsufficientBatchQuantity(err))

	_, err = s.DecrementBatch(ctx, id.New(), types.NewQuantity(1))
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreateBatch_RejectsNonPositive(t *testing.T) {
	s := New()
	item := seedItem(t, s)

	err := s.CreateBatch(context.Background(), inventory.Batch{
		ID:          id.New(),
		ItemID:      item.ID,
		StockInDate: time.Now(),
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestListItems(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"Sugar", "Butter", "Salt"} {
		require.NoError(t, s.UpsertItem(ctx, &inventory.Item{ID: id.New(), Name: name, Unit: "kg"}))
	}

	items, err := s.ListItems(ctx, inventory.ItemFilter{NameContains: "s", Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Salt", items[0].Name)
	assert.Equal(t, "Sugar", items[1].Name)

	items, err = s.ListItems(ctx, inventory.ItemFilter{Limit: 1, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, items)
}
