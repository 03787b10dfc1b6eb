package inventory

import (
	"slices"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// CompareFIFO orders batches for consumption:
//  1. batches with an expiry date before batches without one,
//  2. earlier expiry first,
//  3. earlier stock-in date first,
//  4. lower id first (UUIDv7, so earlier created first).
//
// The order is total, so the same batch state always yields the same allocation.
// Storage implementations must produce exactly this order
// (SQL: expiry_date ASC NULLS LAST, stock_in_date ASC, id ASC).
func CompareFIFO(a, b Batch) int {
	switch {
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
	}
	if c := a.StockInDate.Compare(b.StockInDate); c != 0 {
		return c
	}
	return id.Compare(a.ID, b.ID)
}

// SortFIFO sorts batches in place in consumption order.
func SortFIFO(batches []Batch) {
	slices.SortStableFunc(batches, CompareFIFO)
}

// Allocation is the amount to take from one batch.
type Allocation struct {
	Batch Batch
	Take  types.Quantity
}

// PlanAllocation walks candidates in the given order taking min(remaining, batch quantity)
// from each until the request is covered. It returns the plan and the uncovered remainder,
// which is zero whenever the candidates hold enough stock.
func PlanAllocation(candidates []Batch, requested types.Quantity) ([]Allocation, types.Quantity) {
	remaining := requested
	plan := make([]Allocation, 0, 2)

	for _, b := range candidates {
		if !remaining.IsPositive() {
			break
		}
		if !b.IsLive() {
			continue
		}
		take := remaining.Min(b.Quantity)
		plan = append(plan, Allocation{Batch: b, Take: take})
		remaining -= take
	}

	return plan, remaining
}
