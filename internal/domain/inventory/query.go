package inventory

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// GetItem returns an item with its aggregate quantity.
func (s *Service) GetItem(ctx context.Context, itemID id.ID) (*Item, error) {
	return s.items.GetItem(ctx, itemID)
}

// ListItems returns items ordered by name.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	return s.items.ListItems(ctx, filter)
}

// ListFIFOCandidates returns the item's live batches in the order the next stock-out would consume them.
func (s *Service) ListFIFOCandidates(ctx context.Context, itemID id.ID) ([]Batch, error) {
	if _, err := s.items.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.batches.ListFIFOCandidates(ctx, itemID)
}

// ListBatches returns the item's batches, exhausted ones included on request.
func (s *Service) ListBatches(ctx context.Context, itemID id.ID, includeEmpty bool) ([]Batch, error) {
	if _, err := s.items.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.batches.ListBatches(ctx, itemID, includeEmpty)
}

// GetTransaction returns a transaction with its lines.
func (s *Service) GetTransaction(ctx context.Context, transactionID id.ID) (*TransactionResult, error) {
	txn, err := s.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	lines, err := s.ledger.ListTransactionItems(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list transaction items: %w", err)
	}

	result := &TransactionResult{Transaction: *txn, Items: lines}
	if len(lines) > 0 {
		result.Quantity = lines[len(lines)-1].QuantityAfter
	}
	return result, nil
}

// ListItemHistory returns the item's ledger lines, newest first.
func (s *Service) ListItemHistory(ctx context.Context, itemID id.ID, filter HistoryFilter) ([]LedgerEntry, error) {
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperror.NewValidation("unknown transaction type").
			WithDetail("type", string(*filter.Type))
	}
	if filter.FromDate != nil && filter.ToDate != nil && filter.ToDate.Before(*filter.FromDate) {
		return nil, apperror.NewValidation("toDate must not be before fromDate")
	}
	if _, err := s.items.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	return s.ledger.ListItemHistory(ctx, itemID, filter)
}

// ListExpiringBatches returns live batches of all items that expire within the window after asOf.
func (s *Service) ListExpiringBatches(ctx context.Context, asOf time.Time, within time.Duration) ([]Batch, error) {
	if within < 0 {
		return nil, apperror.NewValidation("within must not be negative")
	}
	before := NormalizeDate(&asOf)
	if before == nil {
		return nil, apperror.NewValidation("reference date is required")
	}
	return s.batches.ListExpiring(ctx, before.Add(within))
}

// ListIncidents returns recorded inconsistencies, newest first.
func (s *Service) ListIncidents(ctx context.Context, itemID *id.ID, limit int) ([]Incident, error) {
	if s.incidents == nil {
		return []Incident{}, nil
	}
	limit, _ = normalizePage(limit, 0)
	return s.incidents.ListIncidents(ctx, itemID, limit)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
