package inventory_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

func TestBatchRepo_FIFOQuery_SQL(t *testing.T) {
	repo := NewBatchRepo(nil)
	itemID := id.New()

	sql, args, err := repo.fifoQuery(itemID, false, true).ToSql()
	require.NoError(t, err)

	want := "SELECT id, item_id, quantity, original_quantity, expiry_date, stock_in_date, transaction_item_id, created_at " +
		"FROM inv_batches WHERE item_id = $1 AND quantity > $2 " +
		"ORDER BY expiry_date ASC NULLS LAST, stock_in_date ASC, id ASC FOR UPDATE"
	assert.Equal(t, want, sql)
	require.Len(t, args, 2)
	assert.Equal(t, int64(0), args[1])
}

func TestBatchRepo_FIFOQuery_IncludeEmpty(t *testing.T) {
	repo := NewBatchRepo(nil)

	sql, args, err := repo.fifoQuery(id.New(), true, false).ToSql()
	require.NoError(t, err)

	assert.NotContains(t, sql, "quantity >")
	assert.NotContains(t, sql, "FOR UPDATE")
	assert.Len(t, args, 1)
}

func TestBatchRepo_DecrementQuery_SQL(t *testing.T) {
	repo := NewBatchRepo(nil)
	batchID := id.New()
	amount := types.MustQuantity("2.5")

	sql, args, err := repo.decrementQuery(batchID, amount).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE inv_batches SET quantity = quantity - $1 WHERE id = $2 AND quantity >= $3 "+
			"RETURNING id, item_id, quantity, original_quantity, expiry_date, stock_in_date, transaction_item_id, created_at",
		sql)
	require.Len(t, args, 3)
	assert.Equal(t, int64(25_000), args[0])
	assert.Equal(t, int64(25_000), args[2])
}

func TestItemRepo_ListQuery_SQL(t *testing.T) {
	repo := NewItemRepo(nil)

	sql, args, err := repo.listQuery(inventory.ItemFilter{
		NameContains: "rice",
		InStockOnly:  true,
		Limit:        20,
		Offset:       40,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, name, unit, pax_capacity, quantity, created_at, updated_at FROM inv_items "+
			"WHERE name ILIKE $1 AND quantity > $2 ORDER BY name, id LIMIT 20 OFFSET 40",
		sql)
	assert.Equal(t, []any{"%rice%", int64(0)}, args)
}

func TestLedgerRepo_HistoryQuery_SQL(t *testing.T) {
	repo := NewLedgerRepo(nil)
	out := inventory.TransactionOut
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.historyQuery(id.New(), inventory.HistoryFilter{
		Type:     &out,
		FromDate: &from,
		Limit:    10,
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM inv_transaction_items li JOIN inv_transactions t ON t.id = li.transaction_id")
	assert.Contains(t, sql, "t.number AS transaction_number")
	assert.Contains(t, sql, "WHERE li.item_id = $1 AND t.type = $2 AND t.transaction_date >= $3")
	assert.Contains(t, sql, "ORDER BY li.created_at DESC, li.id DESC LIMIT 10")
	assert.Len(t, args, 3)
}

func TestLedgerRepo_InsertLinesQuery_SQL(t *testing.T) {
	repo := NewLedgerRepo(nil)
	lines := []inventory.TransactionItem{
		{ID: id.New(), Quantity: types.NewQuantity(1), QuantityBefore: types.NewQuantity(3), QuantityAfter: types.NewQuantity(2)},
		{ID: id.New(), Quantity: types.NewQuantity(2), QuantityBefore: types.NewQuantity(2), QuantityAfter: 0},
	}

	sql, args, err := repo.insertLinesQuery(lines).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO inv_transaction_items (id,transaction_id,item_id,batch_id,quantity,quantity_before,quantity_after,expiry_date,reason,created_at)")
	assert.Len(t, args, 20)
}
