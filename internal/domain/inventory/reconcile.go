package inventory

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// OperationReconcile tags incidents raised by Reconcile.
const OperationReconcile = "reconcile"

// ReconcileReport compares the three views of an item's stock.
// They agree unless something wrote around the stock commands.
type ReconcileReport struct {
	ItemID     id.ID          `json:"itemId"`
	Aggregate  types.Quantity `json:"aggregate"`
	BatchTotal types.Quantity `json:"batchTotal"`
	LedgerNet  types.Quantity `json:"ledgerNet"`
	Consistent bool           `json:"consistent"`
	CheckedAt  time.Time      `json:"checkedAt"`
}

// Reconcile checks aggregate = Σ live batches = Σ in − Σ out for one item.
// A mismatch is not returned as an error: it is logged, recorded as an incident
// and reported with Consistent=false.
func (s *Service) Reconcile(ctx context.Context, itemID id.ID) (*ReconcileReport, error) {
	var report *ReconcileReport
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// Lock the item so no movement lands between the three reads.
		item, err := s.items.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}

		batchTotal, err := s.batches.SumLive(ctx, itemID)
		if err != nil {
			return fmt.Errorf("sum batches: %w", err)
		}

		ledgerNet, err := s.ledger.NetQuantity(ctx, itemID)
		if err != nil {
			return fmt.Errorf("ledger net quantity: %w", err)
		}

		report = &ReconcileReport{
			ItemID:     itemID,
			Aggregate:  item.Quantity,
			BatchTotal: batchTotal,
			LedgerNet:  ledgerNet,
			Consistent: item.Quantity == batchTotal && batchTotal == ledgerNet,
			CheckedAt:  s.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Consistent {
		snapshot := map[string]any{
			"aggregate":   report.Aggregate.String(),
			"batch_total": report.BatchTotal.String(),
			"ledger_net":  report.LedgerNet.String(),
		}
		if s.alreadyReported(ctx, itemID, snapshot) {
			logger.Warn(ctx, "inventory inconsistency persists",
				"item_id", itemID,
				"snapshot", snapshot,
			)
			return report, nil
		}
		s.reportIncident(ctx, Incident{
			ID:         id.New(),
			ItemID:     itemID,
			Operation:  OperationReconcile,
			Message:    "aggregate, batch total and ledger net disagree",
			Snapshot:   snapshot,
			DetectedAt: report.CheckedAt,
		})
	}

	return report, nil
}

// alreadyReported reports whether the item's latest incident is a reconcile
// incident with the same snapshot.
func (s *Service) alreadyReported(ctx context.Context, itemID id.ID, snapshot map[string]any) bool {
	if s.incidents == nil {
		return false
	}
	latest, err := s.incidents.ListIncidents(ctx, &itemID, 1)
	if err != nil {
		logger.Warn(ctx, "failed to load latest incident", "item_id", itemID, "error", err)
		return false
	}
	if len(latest) == 0 || latest[0].Operation != OperationReconcile {
		return false
	}
	if len(latest[0].Snapshot) != len(snapshot) {
		return false
	}
	for k, v := range snapshot {
		prev, ok := latest[0].Snapshot[k]
		if !ok || fmt.Sprint(prev) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// ReconcileSummary is the outcome of a full sweep.
type ReconcileSummary struct {
	Checked      int     `json:"checked"`
	Inconsistent []id.ID `json:"inconsistent"`
}

// ReconcileAll reconciles every item page by page.
// A failure on one item is logged and does not stop the sweep.
func (s *Service) ReconcileAll(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{}

	for offset := 0; ; offset += maxListLimit {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		items, err := s.items.ListItems(ctx, ItemFilter{Limit: maxListLimit, Offset: offset})
		if err != nil {
			return summary, fmt.Errorf("list items: %w", err)
		}

		for _, item := range items {
			report, err := s.Reconcile(ctx, item.ID)
			if err != nil {
				logger.Warn(ctx, "reconcile failed", "item_id", item.ID, "error", err)
				continue
			}
			summary.Checked++
			if !report.Consistent {
				summary.Inconsistent = append(summary.Inconsistent, item.ID)
			}
		}

		if len(items) < maxListLimit {
			break
		}
	}

	logger.Info(ctx, "reconcile sweep finished",
		"checked", summary.Checked,
		"inconsistent", len(summary.Inconsistent),
	)
	return summary, nil
}
