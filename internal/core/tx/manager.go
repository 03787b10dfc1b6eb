// Package tx provides transaction management abstractions.
// Domain services depend on this interface; the PostgreSQL implementation
// lives in infrastructure/storage/postgres and the in-process one in
// infrastructure/storage/memory.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within one atomic unit.
	// If fn returns an error, every write made through ctx is rolled back.
	// If fn succeeds, the unit is committed.
	//
	// Implementations may re-run fn when the store reports a retryable conflict,
	// so fn must not have side effects outside the store.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
