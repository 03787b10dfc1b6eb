package inventory_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ inventory.BatchStore = (*BatchRepo)(nil)

var batchColumns = postgres.ExtractDBColumns[inventory.Batch]()

// BatchRepo persists batches and serves the FIFO view.
type BatchRepo struct {
	base
}

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txManager *postgres.TxManager) *BatchRepo {
	return &BatchRepo{base: newBase(txManager)}
}

// CreateBatch inserts a new batch.
func (r *BatchRepo) CreateBatch(ctx context.Context, b inventory.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}

	q := r.builder.Insert(batchesTable).
		Columns(batchColumns...).
		Values(b.ID, b.ItemID, b.Quantity.Int64Scaled(), b.OriginalQuantity.Int64Scaled(),
			b.ExpiryDate, b.StockInDate, b.TransactionItemID, b.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// DecrementBatch subtracts amount only if the batch still holds it.
func (r *BatchRepo) DecrementBatch(ctx context.Context, batchID id.ID, amount types.Quantity) (*inventory.Batch, error) {
	if !amount.IsPositive() {
		return nil, apperror.NewValidation("decrement amount must be positive").
			WithDetail("amount", amount.String())
	}

	sql, args, err := r.decrementQuery(batchID, amount).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var b inventory.Batch
	querier := r.txManager.GetQuerier(ctx)
	err = pgxscan.Get(ctx, querier, &b, sql, args...)
	if err == nil {
		return &b, nil
	}
	if !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("decrement batch: %w", err)
	}

	// Nothing updated: either the batch is missing or it holds less than amount.
	var available int64
	if err := querier.QueryRow(ctx, "SELECT quantity FROM inv_batches WHERE id = $1", batchID).Scan(&available); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("read batch quantity: %w", err)
	}
	return nil, apperror.NewInsufficientBatchQuantity(batchID.String(), amount.String(),
		types.NewQuantityFromInt64Scaled(available).String())
}

func (r *BatchRepo) decrementQuery(batchID id.ID, amount types.Quantity) squirrel.UpdateBuilder {
	return r.builder.Update(batchesTable).
		Set("quantity", squirrel.Expr("quantity - ?", amount.Int64Scaled())).
		Where(squirrel.Eq{"id": batchID}).
		Where(squirrel.GtOrEq{"quantity": amount.Int64Scaled()}).
		Suffix("RETURNING " + joinColumns(batchColumns))
}

// ListFIFOCandidates returns live batches in consumption order.
func (r *BatchRepo) ListFIFOCandidates(ctx context.Context, itemID id.ID) ([]inventory.Batch, error) {
	return r.selectBatches(ctx, r.fifoQuery(itemID, false, false))
}

// ListFIFOCandidatesForUpdate locks the live batches in consumption order.
func (r *BatchRepo) ListFIFOCandidatesForUpdate(ctx context.Context, itemID id.ID) ([]inventory.Batch, error) {
	if r.txManager.GetTx(ctx) == nil {
		return nil, fmt.Errorf("ListFIFOCandidatesForUpdate requires transaction context")
	}
	return r.selectBatches(ctx, r.fifoQuery(itemID, false, true))
}

// ListBatches returns the item's batches in FIFO order.
func (r *BatchRepo) ListBatches(ctx context.Context, itemID id.ID, includeEmpty bool) ([]inventory.Batch, error) {
	return r.selectBatches(ctx, r.fifoQuery(itemID, includeEmpty, false))
}

func (r *BatchRepo) fifoQuery(itemID id.ID, includeEmpty, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"item_id": itemID})
	if !includeEmpty {
		q = q.Where(squirrel.Gt{"quantity": int64(0)})
	}
	q = q.OrderBy(fifoOrder...)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

// ListExpiring returns live batches of all items expiring on or before the date.
func (r *BatchRepo) ListExpiring(ctx context.Context, before time.Time) ([]inventory.Batch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Gt{"quantity": int64(0)}).
		Where(squirrel.NotEq{"expiry_date": nil}).
		Where(squirrel.LtOrEq{"expiry_date": before}).
		OrderBy(fifoOrder...)

	return r.selectBatches(ctx, q)
}

// SumLive returns Σ quantity over the item's batches.
func (r *BatchRepo) SumLive(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	q := r.builder.Select("COALESCE(SUM(quantity), 0)").
		From(batchesTable).
		Where(squirrel.Eq{"item_id": itemID}).
		Where(squirrel.Gt{"quantity": int64(0)})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var total int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum batches: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(total), nil
}

func (r *BatchRepo) selectBatches(ctx context.Context, q squirrel.SelectBuilder) ([]inventory.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	batches := make([]inventory.Batch, 0)
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	return batches, nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
