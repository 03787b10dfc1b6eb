package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ inventory.ItemRepository = (*ItemRepo)(nil)

var itemColumns = postgres.ExtractDBColumns[inventory.Item]()

// ItemRepo stores items and their cached aggregate quantity.
type ItemRepo struct {
	base
}

// NewItemRepo creates a new item repository.
func NewItemRepo(txManager *postgres.TxManager) *ItemRepo {
	return &ItemRepo{base: newBase(txManager)}
}

// UpsertItem inserts the item or updates its catalog attributes. Quantity is never overwritten.
func (r *ItemRepo) UpsertItem(ctx context.Context, item *inventory.Item) error {
	q := r.builder.Insert(itemsTable).
		Columns("id", "name", "unit", "pax_capacity", "quantity", "created_at", "updated_at").
		Values(item.ID, item.Name, item.Unit, item.PaxCapacity, int64(0), item.CreatedAt, item.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			unit = EXCLUDED.unit,
			pax_capacity = EXCLUDED.pax_capacity,
			updated_at = EXCLUDED.updated_at`).
		Suffix("RETURNING " + joinColumns(itemColumns))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, item, sql, args...); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// GetItem returns the item or NOT_FOUND.
func (r *ItemRepo) GetItem(ctx context.Context, itemID id.ID) (*inventory.Item, error) {
	return r.get(ctx, itemID, false)
}

// GetItemForUpdate locks the item row. Every movement of the item serializes on it.
func (r *ItemRepo) GetItemForUpdate(ctx context.Context, itemID id.ID) (*inventory.Item, error) {
	if r.txManager.GetTx(ctx) == nil {
		return nil, fmt.Errorf("GetItemForUpdate requires transaction context")
	}
	return r.get(ctx, itemID, true)
}

func (r *ItemRepo) get(ctx context.Context, itemID id.ID, forUpdate bool) (*inventory.Item, error) {
	q := r.builder.Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"id": itemID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var item inventory.Item
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &item, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("item", itemID.String())
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// ListItems returns items ordered by name.
func (r *ItemRepo) ListItems(ctx context.Context, filter inventory.ItemFilter) ([]inventory.Item, error) {
	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := make([]inventory.Item, 0)
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	return items, nil
}

func (r *ItemRepo) listQuery(filter inventory.ItemFilter) squirrel.SelectBuilder {
	q := r.builder.Select(itemColumns...).From(itemsTable)

	if filter.NameContains != "" {
		q = q.Where(squirrel.ILike{"name": "%" + filter.NameContains + "%"})
	}
	if filter.InStockOnly {
		q = q.Where(squirrel.Gt{"quantity": int64(0)})
	}

	q = q.OrderBy("name", "id")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// SetItemQuantity writes the aggregate cache.
func (r *ItemRepo) SetItemQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity, at time.Time) error {
	q := r.builder.Update(itemsTable).
		Set("quantity", quantity.Int64Scaled()).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": itemID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update item quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("item", itemID.String())
	}
	return nil
}
