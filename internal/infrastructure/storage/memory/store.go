// Package memory is an in-process implementation of the inventory storage contracts.
// It backs tests and the seed dry-run; production runs on postgres.
//
// Transactions serialize on one store-wide lock. A failed unit restores the
// snapshot taken when it started, so callers observe all-or-nothing writes
// exactly as with the database.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

type txKey struct{ store *Store }

// Store implements inventory.ItemRepository, BatchStore, Ledger,
// NumberGenerator, IncidentRecorder and tx.Manager.
type Store struct {
	mu sync.RWMutex

	items        map[id.ID]inventory.Item
	batches      map[id.ID]inventory.Batch
	transactions map[id.ID]inventory.Transaction
	txnOrder     []id.ID
	lines        []inventory.TransactionItem
	sequences    map[string]int64
	incidents    []inventory.Incident
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items:        make(map[id.ID]inventory.Item),
		batches:      make(map[id.ID]inventory.Batch),
		transactions: make(map[id.ID]inventory.Transaction),
		sequences:    make(map[string]int64),
	}
}

type snapshot struct {
	items     map[id.ID]inventory.Item
	batches   map[id.ID]inventory.Batch
	txns      map[id.ID]inventory.Transaction
	txnOrder  int
	lines     int
	sequences map[string]int64
}

// RunInTransaction runs fn holding the store write lock.
// Nested calls join the outer unit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		items:     maps.Clone(s.items),
		batches:   maps.Clone(s.batches),
		txns:      maps.Clone(s.transactions),
		txnOrder:  len(s.txnOrder),
		lines:     len(s.lines),
		sequences: maps.Clone(s.sequences),
	}

	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.items = snap.items
		s.batches = snap.batches
		s.transactions = snap.txns
		s.txnOrder = s.txnOrder[:snap.txnOrder]
		s.lines = s.lines[:snap.lines]
		s.sequences = snap.sequences
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

func (s *Store) read(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) write(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- items ---

func (s *Store) UpsertItem(ctx context.Context, item *inventory.Item) error {
	defer s.write(ctx)()

	if existing, ok := s.items[item.ID]; ok {
		existing.Name = item.Name
		existing.Unit = item.Unit
		existing.PaxCapacity = item.PaxCapacity
		existing.UpdatedAt = item.UpdatedAt
		s.items[item.ID] = existing
		*item = existing
		return nil
	}

	stored := *item
	stored.Quantity = 0
	s.items[item.ID] = stored
	*item = stored
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID id.ID) (*inventory.Item, error) {
	defer s.read(ctx)()

	item, ok := s.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	return &item, nil
}

// GetItemForUpdate is GetItem: inside a transaction the store lock is already exclusive.
func (s *Store) GetItemForUpdate(ctx context.Context, itemID id.ID) (*inventory.Item, error) {
	return s.GetItem(ctx, itemID)
}

func (s *Store) ListItems(ctx context.Context, filter inventory.ItemFilter) ([]inventory.Item, error) {
	defer s.read(ctx)()

	needle := strings.ToLower(filter.NameContains)
	out := make([]inventory.Item, 0, len(s.items))
	for _, item := range s.items {
		if needle != "" && !strings.Contains(strings.ToLower(item.Name), needle) {
			continue
		}
		if filter.InStockOnly && !item.Quantity.IsPositive() {
			continue
		}
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b inventory.Item) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return id.Compare(a.ID, b.ID)
	})

	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) SetItemQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity, at time.Time) error {
	defer s.write(ctx)()

	item, ok := s.items[itemID]
	if !ok {
		return apperror.NewNotFound("item", itemID.String())
	}
	if quantity.IsNegative() {
		return apperror.NewValidation("item quantity cannot be negative").
			WithDetail("quantity", quantity.String())
	}
	item.Quantity = quantity
	item.UpdatedAt = at
	s.items[itemID] = item
	return nil
}

// --- batches ---

func (s *Store) CreateBatch(ctx context.Context, batch inventory.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	defer s.write(ctx)()

	if _, ok := s.items[batch.ItemID]; !ok {
		return apperror.NewNotFound("item", batch.ItemID.String())
	}
	if _, ok := s.batches[batch.ID]; ok {
		return apperror.NewDuplicate("batch", "id", batch.ID.String())
	}
	s.batches[batch.ID] = batch
	return nil
}

func (s *Store) DecrementBatch(ctx context.Context, batchID id.ID, amount types.Quantity) (*inventory.Batch, error) {
	if !amount.IsPositive() {
		return nil, apperror.NewValidation("decrement amount must be positive").
			WithDetail("amount", amount.String())
	}

	defer s.write(ctx)()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	if amount > b.Quantity {
		return nil, apperror.NewInsufficientBatchQuantity(batchID.String(), amount.String(), b.Quantity.String())
	}
	b.Quantity -= amount
	s.batches[batchID] = b
	return &b, nil
}

func (s *Store) ListFIFOCandidates(ctx context.Context, itemID id.ID) ([]inventory.Batch, error) {
	defer s.read(ctx)()
	return s.itemBatches(itemID, false), nil
}

func (s *Store) ListFIFOCandidatesForUpdate(ctx context.Context, itemID id.ID) ([]inventory.Batch, error) {
	return s.ListFIFOCandidates(ctx, itemID)
}

func (s *Store) ListBatches(ctx context.Context, itemID id.ID, includeEmpty bool) ([]inventory.Batch, error) {
	defer s.read(ctx)()
	return s.itemBatches(itemID, includeEmpty), nil
}

func (s *Store) ListExpiring(ctx context.Context, before time.Time) ([]inventory.Batch, error) {
	defer s.read(ctx)()

	out := make([]inventory.Batch, 0)
	for _, b := range s.batches {
		if b.IsLive() && b.ExpiryDate != nil && !b.ExpiryDate.After(before) {
			out = append(out, b)
		}
	}
	inventory.SortFIFO(out)
	return out, nil
}

func (s *Store) SumLive(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	defer s.read(ctx)()

	var total types.Quantity
	for _, b := range s.batches {
		if b.ItemID == itemID && b.IsLive() {
			total += b.Quantity
		}
	}
	return total, nil
}

func (s *Store) itemBatches(itemID id.ID, includeEmpty bool) []inventory.Batch {
	out := make([]inventory.Batch, 0)
	for _, b := range s.batches {
		if b.ItemID != itemID {
			continue
		}
		if !includeEmpty && !b.IsLive() {
			continue
		}
		out = append(out, b)
	}
	inventory.SortFIFO(out)
	return out
}

// --- ledger ---

func (s *Store) RecordTransaction(ctx context.Context, txn inventory.Transaction) error {
	if !txn.Type.Valid() {
		return apperror.NewValidation("unknown transaction type").
			WithDetail("type", string(txn.Type))
	}

	defer s.write(ctx)()

	if _, ok := s.transactions[txn.ID]; ok {
		return apperror.NewDuplicate("transaction", "id", txn.ID.String())
	}
	s.transactions[txn.ID] = txn
	s.txnOrder = append(s.txnOrder, txn.ID)
	return nil
}

func (s *Store) RecordTransactionItem(ctx context.Context, line inventory.TransactionItem) error {
	return s.RecordTransactionItems(ctx, []inventory.TransactionItem{line})
}

func (s *Store) RecordTransactionItems(ctx context.Context, lines []inventory.TransactionItem) error {
	defer s.write(ctx)()

	for _, line := range lines {
		txn, ok := s.transactions[line.TransactionID]
		if !ok {
			return apperror.NewNotFound("transaction", line.TransactionID.String())
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("quantity", line.Quantity.String())
		}
		if err := line.CheckBalance(txn.Type); err != nil {
			return apperror.NewValidation(err.Error())
		}
	}
	s.lines = append(s.lines, lines...)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID id.ID) (*inventory.Transaction, error) {
	defer s.read(ctx)()

	txn, ok := s.transactions[transactionID]
	if !ok {
		return nil, apperror.NewNotFound("transaction", transactionID.String())
	}
	return &txn, nil
}

func (s *Store) ListTransactionItems(ctx context.Context, transactionID id.ID) ([]inventory.TransactionItem, error) {
	defer s.read(ctx)()

	out := make([]inventory.TransactionItem, 0)
	for _, l := range s.lines {
		if l.TransactionID == transactionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) ListItemHistory(ctx context.Context, itemID id.ID, filter inventory.HistoryFilter) ([]inventory.LedgerEntry, error) {
	defer s.read(ctx)()

	out := make([]inventory.LedgerEntry, 0)
	// Lines are appended in commit order; walk backwards for newest first.
	for i := len(s.lines) - 1; i >= 0; i-- {
		l := s.lines[i]
		if l.ItemID != itemID {
			continue
		}
		txn := s.transactions[l.TransactionID]
		if filter.Type != nil && txn.Type != *filter.Type {
			continue
		}
		if filter.FromDate != nil && txn.TransactionDate.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && txn.TransactionDate.After(*filter.ToDate) {
			continue
		}
		out = append(out, inventory.LedgerEntry{
			TransactionItem:   l,
			TransactionNumber: txn.Number,
			Type:              txn.Type,
			TransactionDate:   txn.TransactionDate,
			ActorID:           txn.ActorID,
		})
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) NetQuantity(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	defer s.read(ctx)()

	var net types.Quantity
	for _, l := range s.lines {
		if l.ItemID != itemID {
			continue
		}
		net += l.SignedQuantity(s.transactions[l.TransactionID].Type)
	}
	return net, nil
}

// --- numbering ---

// Next returns PREFIX-YYYY-NNNNN, numbering restarting every year.
func (s *Store) Next(ctx context.Context, prefix string, period time.Time) (string, error) {
	defer s.write(ctx)()

	key := fmt.Sprintf("%s_%s", prefix, period.Format("2006"))
	s.sequences[key]++
	return fmt.Sprintf("%s-%s-%05d", prefix, period.Format("2006"), s.sequences[key]), nil
}

// --- incidents ---

func (s *Store) RecordIncident(ctx context.Context, incident inventory.Incident) error {
	defer s.write(ctx)()
	s.incidents = append(s.incidents, incident)
	return nil
}

func (s *Store) ListIncidents(ctx context.Context, itemID *id.ID, limit int) ([]inventory.Incident, error) {
	defer s.read(ctx)()

	out := make([]inventory.Incident, 0)
	for i := len(s.incidents) - 1; i >= 0; i-- {
		if itemID != nil && s.incidents[i].ItemID != *itemID {
			continue
		}
		out = append(out, s.incidents[i])
	}
	return page(out, limit, 0), nil
}

// Incidents returns the recorded incidents.
func (s *Store) Incidents() []inventory.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.incidents)
}

// TransactionCount returns the number of stored transactions.
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// Lines returns every ledger line in commit order.
func (s *Store) Lines() []inventory.TransactionItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lines)
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
