// Package inventory implements the batch ledger: dated stock lots consumed
// first-expiring-first-out, with an append-only before/after movement history.
package inventory

import (
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// TransactionType is the movement direction.
type TransactionType string

const (
	TransactionIn  TransactionType = "in"
	TransactionOut TransactionType = "out"
)

// Valid reports whether t is a known movement direction.
func (t TransactionType) Valid() bool {
	return t == TransactionIn || t == TransactionOut
}

// NumberPrefix is the prefix used for human readable transaction numbers.
func (t TransactionType) NumberPrefix() string {
	return strings.ToUpper(string(t))
}

// Item is a raw material tracked by the ledger.
// Quantity is the aggregate cache: it always equals the sum of the item's live batches
// and is written only by stock commands.
type Item struct {
	ID          id.ID          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Unit        string         `db:"unit" json:"unit"`
	PaxCapacity int            `db:"pax_capacity" json:"paxCapacity"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// Batch is one physical lot of an item.
type Batch struct {
	ID               id.ID          `db:"id" json:"id"`
	ItemID           id.ID          `db:"item_id" json:"itemId"`
	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	OriginalQuantity types.Quantity `db:"original_quantity" json:"originalQuantity"`
	// ExpiryDate is nil for non-perishable stock.
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	StockInDate time.Time  `db:"stock_in_date" json:"stockInDate"`
	// TransactionItemID is the stock-in line that created the batch.
	TransactionItemID id.ID     `db:"transaction_item_id" json:"transactionItemId"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// NewBatch creates a full batch for a stock-in line.
func NewBatch(itemID id.ID, originalQty types.Quantity, expiry *time.Time, stockInDate time.Time, lineID id.ID, createdAt time.Time) (Batch, error) {
	b := Batch{
		ID:                id.New(),
		ItemID:            itemID,
		Quantity:          originalQty,
		OriginalQuantity:  originalQty,
		ExpiryDate:        NormalizeDate(expiry),
		StockInDate:       stockInDate.UTC(),
		TransactionItemID: lineID,
		CreatedAt:         createdAt,
	}
	if err := b.Validate(); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Validate checks 0 <= quantity <= original_quantity and the required fields.
func (b Batch) Validate() error {
	if !b.OriginalQuantity.IsPositive() {
		return apperror.NewValidation("batch original quantity must be positive").
			WithDetail("original_quantity", b.OriginalQuantity.String())
	}
	if b.Quantity.IsNegative() || b.Quantity > b.OriginalQuantity {
		return apperror.NewValidation("batch quantity must be between 0 and original quantity").
			WithDetail("quantity", b.Quantity.String()).
			WithDetail("original_quantity", b.OriginalQuantity.String())
	}
	if b.StockInDate.IsZero() {
		return apperror.NewValidation("batch stock-in date is required")
	}
	return nil
}

// IsLive reports whether the batch still holds stock.
func (b Batch) IsLive() bool { return b.Quantity.IsPositive() }

// Transaction is one immutable stock movement event.
type Transaction struct {
	ID              id.ID           `db:"id" json:"id"`
	Number          string          `db:"number" json:"number"`
	Type            TransactionType `db:"type" json:"type"`
	TransactionDate time.Time       `db:"transaction_date" json:"transactionDate"`
	ActorID         *id.ID          `db:"actor_id" json:"actorId,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// TransactionItem is one line of a Transaction, scoped to one item and one batch.
// Quantity is always positive; the transaction type gives the direction.
type TransactionItem struct {
	ID             id.ID          `db:"id" json:"id"`
	TransactionID  id.ID          `db:"transaction_id" json:"transactionId"`
	ItemID         id.ID          `db:"item_id" json:"itemId"`
	BatchID        id.ID          `db:"batch_id" json:"batchId"`
	Quantity       types.Quantity `db:"quantity" json:"quantity"`
	QuantityBefore types.Quantity `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  types.Quantity `db:"quantity_after" json:"quantityAfter"`
	// ExpiryDate is set on "in" lines only.
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	// Reason is set on "out" lines only.
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SignedQuantity returns the line quantity with the sign of its direction.
func (l TransactionItem) SignedQuantity(t TransactionType) types.Quantity {
	if t == TransactionOut {
		return -l.Quantity
	}
	return l.Quantity
}

// CheckBalance verifies quantity_after = quantity_before ± quantity.
func (l TransactionItem) CheckBalance(t TransactionType) error {
	if l.QuantityBefore+l.SignedQuantity(t) != l.QuantityAfter {
		return fmt.Errorf("line %s: %s %s %s != %s",
			l.ID, l.QuantityBefore, t, l.Quantity, l.QuantityAfter)
	}
	return nil
}

// LedgerEntry is a transaction line joined with its transaction header, for history views.
type LedgerEntry struct {
	TransactionItem
	TransactionNumber string          `db:"transaction_number" json:"transactionNumber"`
	Type              TransactionType `db:"transaction_type" json:"type"`
	TransactionDate   time.Time       `db:"transaction_date" json:"transactionDate"`
	ActorID           *id.ID          `db:"actor_id" json:"actorId,omitempty"`
}

// TransactionResult is what a stock command returns: the movement, its lines
// and the item's aggregate quantity once the movement is applied.
type TransactionResult struct {
	Transaction Transaction       `json:"transaction"`
	Items       []TransactionItem `json:"items"`
	Quantity    types.Quantity    `json:"quantity"`
}

// NormalizeDate truncates an optional date to midnight UTC, the granularity
// expiry dates are stored and compared at.
func NormalizeDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
