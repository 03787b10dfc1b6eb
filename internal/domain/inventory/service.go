package inventory

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Service runs stock commands and ledger queries.
// Every command is one atomic unit: the item row lock, batch writes, ledger
// lines and the aggregate cache are committed together or not at all.
type Service struct {
	items     ItemRepository
	batches   BatchStore
	ledger    Ledger
	txManager tx.Manager
	numbers   NumberGenerator
	incidents IncidentRecorder
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithNumberGenerator enables human readable transaction numbers.
func WithNumberGenerator(g NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

// WithIncidentRecorder persists inconsistencies for manual reconciliation.
func WithIncidentRecorder(r IncidentRecorder) Option {
	return func(s *Service) { s.incidents = r }
}

// WithClock sets the clock used for record creation timestamps.
// Business dates (transaction date, stock-in date) always come from commands.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new inventory service.
func NewService(items ItemRepository, batches BatchStore, ledger Ledger, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		items:     items,
		batches:   batches,
		ledger:    ledger,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterItem creates an item or updates its catalog attributes.
func (s *Service) RegisterItem(ctx context.Context, cmd RegisterItemCommand) (*Item, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	item := &Item{
		Name:        cmd.Name,
		Unit:        cmd.Unit,
		PaxCapacity: cmd.PaxCapacity,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if cmd.ID != nil {
		item.ID = *cmd.ID
	} else {
		item.ID = id.New()
	}

	if err := s.items.UpsertItem(ctx, item); err != nil {
		return nil, fmt.Errorf("upsert item: %w", err)
	}

	logger.Info(ctx, "item registered", "item_id", item.ID, "name", item.Name)
	return item, nil
}

// StockIn receives a lot: one "in" transaction, one line and one new batch.
func (s *Service) StockIn(ctx context.Context, cmd StockInCommand) (*TransactionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *TransactionResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.items.GetItemForUpdate(ctx, cmd.ItemID)
		if err != nil {
			return err
		}
		before := item.Quantity
		after, ok := before.Add(cmd.Quantity)
		if !ok {
			return apperror.NewValidation("quantity exceeds the item's storable total").
				WithDetail("item_id", item.ID.String()).
				WithDetail("on_hand", before.String()).
				WithDetail("quantity", cmd.Quantity.String())
		}

		txn, err := s.newTransaction(ctx, TransactionIn, cmd.At, cmd.ActorID, cmd.Notes)
		if err != nil {
			return err
		}
		if err := s.ledger.RecordTransaction(ctx, txn); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		line := TransactionItem{
			ID:             id.New(),
			TransactionID:  txn.ID,
			ItemID:         item.ID,
			Quantity:       cmd.Quantity,
			QuantityBefore: before,
			QuantityAfter:  after,
			ExpiryDate:     NormalizeDate(cmd.ExpiryDate),
			CreatedAt:      s.now(),
		}

		batch, err := NewBatch(item.ID, cmd.Quantity, cmd.ExpiryDate, cmd.StockInDate, line.ID, s.now())
		if err != nil {
			return err
		}
		line.BatchID = batch.ID

		if err := s.ledger.RecordTransactionItem(ctx, line); err != nil {
			return fmt.Errorf("record transaction item: %w", err)
		}
		if err := s.batches.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		if err := s.items.SetItemQuantity(ctx, item.ID, line.QuantityAfter, s.now()); err != nil {
			return fmt.Errorf("update aggregate: %w", err)
		}

		result = &TransactionResult{
			Transaction: txn,
			Items:       []TransactionItem{line},
			Quantity:    line.QuantityAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock in",
		"item_id", cmd.ItemID,
		"transaction_id", result.Transaction.ID,
		"number", result.Transaction.Number,
		"quantity", cmd.Quantity,
		"quantity_after", result.Quantity,
	)
	return result, nil
}

// StockOut withdraws stock from the item's batches in FIFO order, one line per batch touched.
//
// The request is rejected with INSUFFICIENT_STOCK before anything is written when the
// aggregate cannot cover it. If the aggregate claims enough stock but the batches do not
// hold it, the unit is rolled back and INVENTORY_INCONSISTENCY is returned and recorded.
func (s *Service) StockOut(ctx context.Context, cmd StockOutCommand) (*TransactionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var (
		result   *TransactionResult
		incident *Incident
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		incident = nil

		item, err := s.items.GetItemForUpdate(ctx, cmd.ItemID)
		if err != nil {
			return err
		}
		before := item.Quantity

		if before < cmd.Quantity {
			return apperror.NewInsufficientStock(item.ID.String(), cmd.Quantity.String(), before.String())
		}

		candidates, err := s.batches.ListFIFOCandidatesForUpdate(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("list fifo candidates: %w", err)
		}

		plan, remaining := PlanAllocation(candidates, cmd.Quantity)
		if remaining.IsPositive() {
			incident = s.shortfallIncident(item, cmd.Quantity, remaining, candidates)
			return apperror.NewInventoryInconsistency(item.ID.String(), "batches do not cover the item aggregate").
				WithDetail("aggregate", before.String()).
				WithDetail("requested", cmd.Quantity.String()).
				WithDetail("uncovered", remaining.String())
		}

		txn, err := s.newTransaction(ctx, TransactionOut, cmd.At, cmd.ActorID, cmd.Notes)
		if err != nil {
			return err
		}
		if err := s.ledger.RecordTransaction(ctx, txn); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		running := before
		lines := make([]TransactionItem, 0, len(plan))
		for _, a := range plan {
			if _, err := s.batches.DecrementBatch(ctx, a.Batch.ID, a.Take); err != nil {
				return err
			}
			lines = append(lines, TransactionItem{
				ID:             id.New(),
				TransactionID:  txn.ID,
				ItemID:         item.ID,
				BatchID:        a.Batch.ID,
				Quantity:       a.Take,
				QuantityBefore: running,
				QuantityAfter:  running - a.Take,
				Reason:         cmd.Reason,
				CreatedAt:      s.now(),
			})
			running -= a.Take
		}

		if err := s.ledger.RecordTransactionItems(ctx, lines); err != nil {
			return fmt.Errorf("record transaction items: %w", err)
		}
		if err := s.items.SetItemQuantity(ctx, item.ID, running, s.now()); err != nil {
			return fmt.Errorf("update aggregate: %w", err)
		}

		result = &TransactionResult{
			Transaction: txn,
			Items:       lines,
			Quantity:    running,
		}
		return nil
	})
	if err != nil {
		if incident != nil && apperror.IsInventoryInconsistency(err) {
			s.reportIncident(ctx, *incident)
		}
		return nil, err
	}

	logger.Info(ctx, "stock out",
		"item_id", cmd.ItemID,
		"transaction_id", result.Transaction.ID,
		"number", result.Transaction.Number,
		"quantity", cmd.Quantity,
		"batches", len(result.Items),
		"quantity_after", result.Quantity,
	)
	return result, nil
}

// newTransaction builds a numbered transaction header.
// The actor falls back to the one carried by ctx.
func (s *Service) newTransaction(ctx context.Context, t TransactionType, at time.Time, actorID *id.ID, notes *string) (Transaction, error) {
	if actorID == nil {
		actorID = appctx.GetActorID(ctx)
	}

	txn := Transaction{
		ID:              id.New(),
		Type:            t,
		TransactionDate: at.UTC(),
		ActorID:         actorID,
		Notes:           notes,
		CreatedAt:       s.now(),
	}

	if s.numbers == nil {
		// Unique without a sequence; only services built without a generator hit this.
		txn.Number = t.NumberPrefix() + "-" + txn.ID.String()
		return txn, nil
	}

	number, err := s.numbers.Next(ctx, t.NumberPrefix(), at)
	if err != nil {
		return Transaction{}, fmt.Errorf("generate transaction number: %w", err)
	}
	txn.Number = number

	return txn, nil
}

func (s *Service) shortfallIncident(item *Item, requested, uncovered types.Quantity, candidates []Batch) *Incident {
	batches := make([]map[string]any, 0, len(candidates))
	var total types.Quantity
	for _, b := range candidates {
		total += b.Quantity
		batches = append(batches, map[string]any{
			"batch_id": b.ID.String(),
			"quantity": b.Quantity.String(),
		})
	}

	return &Incident{
		ID:        id.New(),
		ItemID:    item.ID,
		Operation: "stock_out",
		Message:   "aggregate quantity exceeds the sum of live batches",
		Snapshot: map[string]any{
			"aggregate":   item.Quantity.String(),
			"batch_total": total.String(),
			"requested":   requested.String(),
			"uncovered":   uncovered.String(),
			"batches":     batches,
		},
		DetectedAt: s.now(),
	}
}

// reportIncident logs the inconsistency and persists it outside the rolled back unit.
func (s *Service) reportIncident(ctx context.Context, incident Incident) {
	logger.Error(ctx, "inventory inconsistency",
		"item_id", incident.ItemID,
		"operation", incident.Operation,
		"message", incident.Message,
		"snapshot", incident.Snapshot,
	)

	if s.incidents == nil {
		return
	}
	if err := s.incidents.RecordIncident(context.WithoutCancel(ctx), incident); err != nil {
		logger.Error(ctx, "failed to record inventory incident",
			"item_id", incident.ItemID,
			"error", err,
		)
	}
}
