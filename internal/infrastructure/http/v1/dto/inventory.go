package dto

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

// --- Items ---

// RegisterItemRequest syncs an item from the catalog.
type RegisterItemRequest struct {
	ID          *string `json:"id"`
	Name        string  `json:"name" binding:"required"`
	Unit        string  `json:"unit" binding:"required"`
	PaxCapacity int     `json:"paxCapacity" binding:"min=0"`
}

// ItemResponse represents an item with its on-hand quantity.
type ItemResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Unit        string         `json:"unit"`
	PaxCapacity int            `json:"paxCapacity"`
	Quantity    types.Quantity `json:"quantity"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// FromItem converts an item to its response.
func FromItem(i inventory.Item) ItemResponse {
	return ItemResponse{
		ID:          i.ID.String(),
		Name:        i.Name,
		Unit:        i.Unit,
		PaxCapacity: i.PaxCapacity,
		Quantity:    i.Quantity,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

// --- Batches ---

// BatchResponse represents one lot.
type BatchResponse struct {
	ID                string         `json:"id"`
	ItemID            string         `json:"itemId"`
	Quantity          types.Quantity `json:"quantity"`
	OriginalQuantity  types.Quantity `json:"originalQuantity"`
	ExpiryDate        *string        `json:"expiryDate"`
	StockInDate       time.Time      `json:"stockInDate"`
	TransactionItemID string         `json:"transactionItemId"`
}

// FromBatch converts a batch to its response.
func FromBatch(b inventory.Batch) BatchResponse {
	return BatchResponse{
		ID:                b.ID.String(),
		ItemID:            b.ItemID.String(),
		Quantity:          b.Quantity,
		OriginalQuantity:  b.OriginalQuantity,
		ExpiryDate:        FormatDate(b.ExpiryDate),
		StockInDate:       b.StockInDate,
		TransactionItemID: b.TransactionItemID.String(),
	}
}

// FromBatches converts a list of batches.
func FromBatches(batches []inventory.Batch) []BatchResponse {
	out := make([]BatchResponse, len(batches))
	for i, b := range batches {
		out[i] = FromBatch(b)
	}
	return out
}

// --- Stock commands ---

// StockInRequest receives a lot.
// StockInDate defaults to the transaction date when omitted.
type StockInRequest struct {
	ItemID      string         `json:"itemId" binding:"required,uuid"`
	Quantity    types.Quantity `json:"quantity"`
	ExpiryDate  *string        `json:"expiryDate"`
	StockInDate *string        `json:"stockInDate"`
	Notes       *string        `json:"notes"`
}

// StockOutRequest withdraws stock in FIFO order.
type StockOutRequest struct {
	ItemID   string         `json:"itemId" binding:"required,uuid"`
	Quantity types.Quantity `json:"quantity"`
	Reason   *string        `json:"reason"`
	Notes    *string        `json:"notes"`
}

// TransactionItemResponse is one ledger line.
type TransactionItemResponse struct {
	ID             string         `json:"id"`
	ItemID         string         `json:"itemId"`
	BatchID        string         `json:"batchId"`
	Quantity       types.Quantity `json:"quantity"`
	QuantityBefore types.Quantity `json:"quantityBefore"`
	QuantityAfter  types.Quantity `json:"quantityAfter"`
	ExpiryDate     *string        `json:"expiryDate,omitempty"`
	Reason         *string        `json:"reason,omitempty"`
}

func fromTransactionItem(l inventory.TransactionItem) TransactionItemResponse {
	return TransactionItemResponse{
		ID:             l.ID.String(),
		ItemID:         l.ItemID.String(),
		BatchID:        l.BatchID.String(),
		Quantity:       l.Quantity,
		QuantityBefore: l.QuantityBefore,
		QuantityAfter:  l.QuantityAfter,
		ExpiryDate:     FormatDate(l.ExpiryDate),
		Reason:         l.Reason,
	}
}

// TransactionResponse is a movement with its lines.
// Quantity is the item's on-hand quantity right after the movement.
type TransactionResponse struct {
	ID              string                    `json:"id"`
	Number          string                    `json:"number"`
	Type            string                    `json:"type"`
	TransactionDate time.Time                 `json:"transactionDate"`
	ActorID         *string                   `json:"actorId,omitempty"`
	Notes           *string                   `json:"notes,omitempty"`
	Items           []TransactionItemResponse `json:"items"`
	Quantity        types.Quantity            `json:"quantity"`
}

// FromTransactionResult converts a command result.
func FromTransactionResult(r inventory.TransactionResult) TransactionResponse {
	items := make([]TransactionItemResponse, len(r.Items))
	for i, l := range r.Items {
		items[i] = fromTransactionItem(l)
	}
	return TransactionResponse{
		ID:              r.Transaction.ID.String(),
		Number:          r.Transaction.Number,
		Type:            string(r.Transaction.Type),
		TransactionDate: r.Transaction.TransactionDate,
		ActorID:         idString(r.Transaction.ActorID),
		Notes:           r.Transaction.Notes,
		Items:           items,
		Quantity:        r.Quantity,
	}
}

// --- History ---

// HistoryEntryResponse is a ledger line with its transaction header.
type HistoryEntryResponse struct {
	TransactionItemResponse
	TransactionID     string    `json:"transactionId"`
	TransactionNumber string    `json:"transactionNumber"`
	Type              string    `json:"type"`
	TransactionDate   time.Time `json:"transactionDate"`
	ActorID           *string   `json:"actorId,omitempty"`
}

// FromLedgerEntries converts history rows.
func FromLedgerEntries(entries []inventory.LedgerEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryResponse{
			TransactionItemResponse: fromTransactionItem(e.TransactionItem),
			TransactionID:           e.TransactionID.String(),
			TransactionNumber:       e.TransactionNumber,
			Type:                    string(e.Type),
			TransactionDate:         e.TransactionDate,
			ActorID:                 idString(e.ActorID),
		}
	}
	return out
}
