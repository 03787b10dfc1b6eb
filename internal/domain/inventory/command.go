package inventory

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// StockInCommand receives a new lot of an item.
type StockInCommand struct {
	ItemID      id.ID
	Quantity    types.Quantity
	ExpiryDate  *time.Time
	StockInDate time.Time
	// At is the transaction date. Supplied by the caller so the ledger never reads the wall clock.
	At      time.Time
	ActorID *id.ID
	Notes   *string
}

// Validate rejects the command before any write.
func (c StockInCommand) Validate() error {
	if id.IsNil(c.ItemID) {
		return apperror.NewValidation("item_id is required")
	}
	if !c.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", c.Quantity.String())
	}
	if c.StockInDate.IsZero() {
		return apperror.NewValidation("stock_in_date is required")
	}
	if c.At.IsZero() {
		return apperror.NewValidation("transaction date is required")
	}
	return nil
}

// StockOutCommand withdraws stock from an item's batches in FIFO order.
type StockOutCommand struct {
	ItemID   id.ID
	Quantity types.Quantity
	Reason   *string
	At       time.Time
	ActorID  *id.ID
	Notes    *string
}

// Validate rejects the command before any write.
func (c StockOutCommand) Validate() error {
	if id.IsNil(c.ItemID) {
		return apperror.NewValidation("item_id is required")
	}
	if !c.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", c.Quantity.String())
	}
	if c.At.IsZero() {
		return apperror.NewValidation("transaction date is required")
	}
	return nil
}

// RegisterItemCommand creates or updates the catalog attributes of an item.
// It never touches the item's quantity.
type RegisterItemCommand struct {
	ID          *id.ID
	Name        string
	Unit        string
	PaxCapacity int
}

func (c RegisterItemCommand) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return apperror.NewValidation("name is required")
	}
	if strings.TrimSpace(c.Unit) == "" {
		return apperror.NewValidation("unit is required")
	}
	if c.PaxCapacity < 0 {
		return apperror.NewValidation("pax_capacity cannot be negative")
	}
	return nil
}
