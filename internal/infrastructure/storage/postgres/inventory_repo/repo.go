// Package inventory_repo provides PostgreSQL implementations of the inventory storage contracts.
package inventory_repo

import (
	"github.com/Masterminds/squirrel"

	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	itemsTable            = "inv_items"
	batchesTable          = "inv_batches"
	transactionsTable     = "inv_transactions"
	transactionItemsTable = "inv_transaction_items"
)

// fifoOrder is the consumption order of batches. It must match inventory.CompareFIFO.
var fifoOrder = []string{"expiry_date ASC NULLS LAST", "stock_in_date ASC", "id ASC"}

// base holds what every repo needs: the statement builder and the querier source.
type base struct {
	builder   squirrel.StatementBuilderType
	txManager *postgres.TxManager
}

func newBase(txManager *postgres.TxManager) base {
	return base{
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txManager: txManager,
	}
}
