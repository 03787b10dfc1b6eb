package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ inventory.Ledger = (*LedgerRepo)(nil)

var (
	transactionColumns = postgres.ExtractDBColumns[inventory.Transaction]()
	lineColumns        = postgres.ExtractDBColumns[inventory.TransactionItem]()
)

// LedgerRepo is the append-only movement history. It exposes no update or delete.
type LedgerRepo struct {
	base
	inserter *postgres.BatchInserter
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		base:     newBase(txManager),
		inserter: postgres.NewBatchInserter(txManager),
	}
}

// RecordTransaction appends a transaction header.
func (r *LedgerRepo) RecordTransaction(ctx context.Context, txn inventory.Transaction) error {
	if !txn.Type.Valid() {
		return apperror.NewValidation("unknown transaction type").WithDetail("type", string(txn.Type))
	}

	q := r.builder.Insert(transactionsTable).
		Columns(transactionColumns...).
		Values(txn.ID, txn.Number, txn.Type, txn.TransactionDate, txn.ActorID, txn.Notes, txn.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// RecordTransactionItem appends one line.
func (r *LedgerRepo) RecordTransactionItem(ctx context.Context, line inventory.TransactionItem) error {
	return r.RecordTransactionItems(ctx, []inventory.TransactionItem{line})
}

// RecordTransactionItems appends lines. Inside a transaction the COPY protocol is used.
func (r *LedgerRepo) RecordTransactionItems(ctx context.Context, lines []inventory.TransactionItem) error {
	if len(lines) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	if r.txManager.GetTx(ctx) != nil {
		if _, err := postgres.CopyStructs(ctx, r.inserter, transactionItemsTable, lines); err != nil {
			return fmt.Errorf("copy transaction items: %w", err)
		}
		return nil
	}

	sql, args, err := r.insertLinesQuery(lines).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transaction items: %w", err)
	}
	return nil
}

func (r *LedgerRepo) insertLinesQuery(lines []inventory.TransactionItem) squirrel.InsertBuilder {
	q := r.builder.Insert(transactionItemsTable).Columns(lineColumns...)
	for _, l := range lines {
		q = q.Values(
			l.ID, l.TransactionID, l.ItemID, l.BatchID,
			l.Quantity.Int64Scaled(), l.QuantityBefore.Int64Scaled(), l.QuantityAfter.Int64Scaled(),
			l.ExpiryDate, l.Reason, l.CreatedAt,
		)
	}
	return q
}

// GetTransaction returns the transaction header or NOT_FOUND.
func (r *LedgerRepo) GetTransaction(ctx context.Context, transactionID id.ID) (*inventory.Transaction, error) {
	q := r.builder.Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{"id": transactionID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var txn inventory.Transaction
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &txn, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transaction", transactionID.String())
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &txn, nil
}

// ListTransactionItems returns the lines of one transaction in the order they were written.
func (r *LedgerRepo) ListTransactionItems(ctx context.Context, transactionID id.ID) ([]inventory.TransactionItem, error) {
	q := r.builder.Select(lineColumns...).
		From(transactionItemsTable).
		Where(squirrel.Eq{"transaction_id": transactionID}).
		OrderBy("id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	lines := make([]inventory.TransactionItem, 0)
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select transaction items: %w", err)
	}
	return lines, nil
}

// ListItemHistory returns the item's lines joined with their headers, newest first.
func (r *LedgerRepo) ListItemHistory(ctx context.Context, itemID id.ID, filter inventory.HistoryFilter) ([]inventory.LedgerEntry, error) {
	sql, args, err := r.historyQuery(itemID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	entries := make([]inventory.LedgerEntry, 0)
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepo) historyQuery(itemID id.ID, filter inventory.HistoryFilter) squirrel.SelectBuilder {
	cols := make([]string, 0, len(lineColumns)+4)
	for _, c := range lineColumns {
		cols = append(cols, "li."+c)
	}
	cols = append(cols,
		"t.number AS transaction_number",
		"t.type AS transaction_type",
		"t.transaction_date",
		"t.actor_id",
	)

	q := r.builder.Select(cols...).
		From(transactionItemsTable + " li").
		Join(transactionsTable + " t ON t.id = li.transaction_id").
		Where(squirrel.Eq{"li.item_id": itemID})

	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"t.type": *filter.Type})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"t.transaction_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"t.transaction_date": *filter.ToDate})
	}

	q = q.OrderBy("li.created_at DESC", "li.id DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// NetQuantity returns Σ in − Σ out over the item's lines.
func (r *LedgerRepo) NetQuantity(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(
			SUM(CASE WHEN t.type = 'in' THEN li.quantity ELSE -li.quantity END),
			0
		)
		FROM inv_transaction_items li
		JOIN inv_transactions t ON t.id = li.transaction_id
		WHERE li.item_id = $1
	`

	var net int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, itemID).Scan(&net); err != nil {
		return 0, fmt.Errorf("ledger net quantity: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(net), nil
}
