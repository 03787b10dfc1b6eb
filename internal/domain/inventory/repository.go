package inventory

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// ItemRepository stores items and their aggregate quantity cache.
type ItemRepository interface {
	// UpsertItem creates the item or updates name/unit/pax_capacity. Quantity is left untouched.
	UpsertItem(ctx context.Context, item *Item) error

	// GetItem returns the item or a NOT_FOUND error.
	GetItem(ctx context.Context, itemID id.ID) (*Item, error)

	// GetItemForUpdate returns the item with its row locked until the surrounding transaction ends.
	// All movements of one item serialize on this lock.
	GetItemForUpdate(ctx context.Context, itemID id.ID) (*Item, error)

	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)

	// SetItemQuantity writes the aggregate cache. Must run in the same transaction as the batch writes.
	SetItemQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity, at time.Time) error
}

// BatchStore persists batches and exposes the FIFO view.
type BatchStore interface {
	// CreateBatch fails with VALIDATION_ERROR if the original quantity is not positive.
	CreateBatch(ctx context.Context, batch Batch) error

	// DecrementBatch subtracts amount and returns the updated batch.
	// Fails with INSUFFICIENT_BATCH_QUANTITY if amount exceeds the current quantity.
	DecrementBatch(ctx context.Context, batchID id.ID, amount types.Quantity) (*Batch, error)

	// ListFIFOCandidates returns live batches in consumption order (see CompareFIFO).
	ListFIFOCandidates(ctx context.Context, itemID id.ID) ([]Batch, error)

	// ListFIFOCandidatesForUpdate is ListFIFOCandidates with the rows locked.
	ListFIFOCandidatesForUpdate(ctx context.Context, itemID id.ID) ([]Batch, error)

	// ListBatches returns all batches of an item in FIFO order, optionally including exhausted ones.
	ListBatches(ctx context.Context, itemID id.ID, includeEmpty bool) ([]Batch, error)

	// ListExpiring returns live batches of all items expiring on or before the given date.
	ListExpiring(ctx context.Context, before time.Time) ([]Batch, error)

	// SumLive returns the total quantity of the item's batches.
	SumLive(ctx context.Context, itemID id.ID) (types.Quantity, error)
}

// Ledger is the append-only movement history.
type Ledger interface {
	RecordTransaction(ctx context.Context, txn Transaction) error
	RecordTransactionItem(ctx context.Context, line TransactionItem) error

	// RecordTransactionItems appends several lines of one transaction at once.
	RecordTransactionItems(ctx context.Context, lines []TransactionItem) error

	// GetTransaction returns the transaction or a NOT_FOUND error.
	GetTransaction(ctx context.Context, transactionID id.ID) (*Transaction, error)

	ListTransactionItems(ctx context.Context, transactionID id.ID) ([]TransactionItem, error)

	// ListItemHistory returns the item's lines, newest first.
	ListItemHistory(ctx context.Context, itemID id.ID, filter HistoryFilter) ([]LedgerEntry, error)

	// NetQuantity returns Σ in − Σ out over every line of the item.
	NetQuantity(ctx context.Context, itemID id.ID) (types.Quantity, error)
}

// NumberGenerator hands out human readable transaction numbers (IN-2026-00001).
type NumberGenerator interface {
	Next(ctx context.Context, prefix string, period time.Time) (string, error)
}

// IncidentRecorder keeps inconsistencies for manual reconciliation.
// RecordIncident is called after the failed unit was rolled back, so it must not rely on that transaction.
type IncidentRecorder interface {
	RecordIncident(ctx context.Context, incident Incident) error

	// ListIncidents returns incidents newest first, optionally for one item.
	ListIncidents(ctx context.Context, itemID *id.ID, limit int) ([]Incident, error)
}

// ItemFilter for listing items.
type ItemFilter struct {
	NameContains string
	InStockOnly  bool
	Limit        int
	Offset       int
}

// HistoryFilter for item ledger history.
type HistoryFilter struct {
	Type     *TransactionType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// Incident describes a detected inventory inconsistency.
type Incident struct {
	ID         id.ID          `json:"id"`
	ItemID     id.ID          `json:"itemId"`
	Operation  string         `json:"operation"`
	Message    string         `json:"message"`
	Snapshot   map[string]any `json:"snapshot"`
	DetectedAt time.Time      `json:"detectedAt"`
}
