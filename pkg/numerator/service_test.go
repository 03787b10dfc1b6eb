package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences with one counter per key.
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
	err    error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{values: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}

	key := args[0].(string)
	var increment int64 = 1
	if len(args) == 2 {
		increment = args[1].(int64)
	}
	m.values[key] += increment
	return &mockRow{val: m.values[key]}
}

var period = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func TestNext_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()

	num, err := svc.Next(ctx, "IN", period)
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00001", num)

	num, err = svc.Next(ctx, "IN", period)
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00002", num)

	// Separate sequence per prefix and per year.
	num, err = svc.Next(ctx, "OUT", period)
	require.NoError(t, err)
	assert.Equal(t, "OUT-2026-00001", num)

	num, err = svc.Next(ctx, "IN", period.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "IN-2027-00001", num)
}

func TestNext_StrictUsesTxQuerier(t *testing.T) {
	pool := newMockQuerier()
	tx := newMockQuerier()
	svc := New(pool, WithTxQuerier(func(ctx context.Context) Querier { return tx }))

	_, err := svc.Next(context.Background(), "OUT", period)
	require.NoError(t, err)

	assert.Equal(t, 0, pool.calls)
	assert.Equal(t, 1, tx.calls)
}

func TestNext_Cached(t *testing.T) {
	q := newMockQuerier()
	tx := newMockQuerier()
	svc := New(q,
		WithStrategy(StrategyCached),
		WithRangeSize(10),
		WithTxQuerier(func(ctx context.Context) Querier { return tx }),
	)
	ctx := context.Background()

	num, err := svc.Next(ctx, "OUT", period)
	require.NoError(t, err)
	assert.Equal(t, "OUT-2026-00001", num)
	assert.Equal(t, int64(10), q.values["OUT_2026"])

	for range 9 {
		_, err = svc.Next(ctx, "OUT", period)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.calls, "range served from memory")

	num, err = svc.Next(ctx, "OUT", period)
	require.NoError(t, err)
	assert.Equal(t, "OUT-2026-00011", num)
	assert.Equal(t, 2, q.calls)

	// Ranges are reserved on the pool, never on the caller's transaction.
	assert.Equal(t, 0, tx.calls)
}

func TestNext_Error(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection refused")
	svc := New(q)

	_, err := svc.Next(context.Background(), "IN", period)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSetNext_InvalidatesCache(t *testing.T) {
	q := newMockQuerier()
	svc := New(q, WithStrategy(StrategyCached), WithRangeSize(10))
	ctx := context.Background()

	_, err := svc.Next(ctx, "IN", period)
	require.NoError(t, err)

	require.NoError(t, svc.SetNext(ctx, "IN", period, 100))

	svc.cacheMu.Lock()
	_, cached := svc.ranges["IN_2026"]
	svc.cacheMu.Unlock()
	assert.False(t, cached)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("cached")
	require.NoError(t, err)
	assert.Equal(t, StrategyCached, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyStrict, s)

	_, err = ParseStrategy("random")
	assert.Error(t, err)
}
