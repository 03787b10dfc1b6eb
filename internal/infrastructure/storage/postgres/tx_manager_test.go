package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("decrement batch: %w", &pgconn.PgError{Code: "40001"}), true},
		{"double wrapped deadlock", fmt.Errorf("commit transaction: %w", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"})), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"check violation", fmt.Errorf("create batch: %w", &pgconn.PgError{Code: "23514"}), false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestSleepBackoff(t *testing.T) {
	t.Run("no base returns immediately", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, sleepBackoff(ctx, 1, 0))
	})

	t.Run("waits at least attempt times base", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, sleepBackoff(context.Background(), 2, 5*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := sleepBackoff(ctx, 3, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		err := sleepBackoff(ctx, 1, time.Hour)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestDefaultTxOptions(t *testing.T) {
	opts := DefaultTxOptions()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Positive(t, opts.RetryBackoff)
	assert.Equal(t, 30*time.Second, opts.StatementTimeout)

	assert.Equal(t, opts.MaxAttempts, SerializableTxOptions().MaxAttempts)
}

func TestTxManager_GetTx(t *testing.T) {
	m := NewTxManagerFromRawPool(nil)
	assert.Nil(t, m.GetTx(context.Background()))

	wrapped := &Tx{}
	ctx := context.WithValue(context.Background(), txKey{}, wrapped)
	assert.Same(t, wrapped, m.GetTx(ctx))
}
