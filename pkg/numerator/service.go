// Package numerator hands out human readable, per-year sequential numbers
// such as IN-2026-00001, backed by the sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPSERT ... RETURNING for every number, on the caller's
	// transaction when one is available. Gapless: a rolled back command gives its number back.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges of numbers and serves them from memory.
	// Faster, but a restart or a rolled back command leaves gaps.
	StrategyCached
)

const (
	defaultRangeSize = 50
	defaultPadWidth  = 5
)

// ParseStrategy maps "strict" and "cached" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "strict":
		return StrategyStrict, nil
	case "cached":
		return StrategyCached, nil
	default:
		return StrategyStrict, fmt.Errorf("unknown numbering strategy %q", s)
	}
}

// Querier is the subset of pgx used here; *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service generates numbers.
type Service struct {
	pool      Querier
	txQuerier func(ctx context.Context) Querier
	strategy  Strategy
	rangeSize int64
	padWidth  int

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// Option configures a Service.
type Option func(*Service)

// WithStrategy selects strict or cached numbering.
func WithStrategy(s Strategy) Option {
	return func(svc *Service) { svc.strategy = s }
}

// WithRangeSize sets how many numbers the cached strategy reserves at once.
func WithRangeSize(n int64) Option {
	return func(svc *Service) { svc.rangeSize = n }
}

// WithTxQuerier makes the strict strategy run on the caller's transaction.
// get should return the active transaction when ctx carries one and the pool otherwise.
func WithTxQuerier(get func(ctx context.Context) Querier) Option {
	return func(svc *Service) { svc.txQuerier = get }
}

// New creates a numerator on the given pool.
// Cached ranges are always reserved on the pool so a rolled back command
// never returns numbers that memory already handed out.
func New(pool Querier, opts ...Option) *Service {
	s := &Service{
		pool:      pool,
		strategy:  StrategyStrict,
		rangeSize: defaultRangeSize,
		padWidth:  defaultPadWidth,
		ranges:    make(map[string]*cachedRange),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next number for prefix in period's year.
// Pattern: PREFIX-YEAR-NNNNN (e.g., OUT-2026-00042).
func (s *Service) Next(ctx context.Context, prefix string, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	key := buildKey(prefix, period)

	var (
		num int64
		err error
	)
	switch s.strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, key)
	default:
		num, err = s.nextStrict(ctx, key)
	}
	if err != nil {
		return "", err
	}

	return s.format(prefix, period, num), nil
}

func (s *Service) nextStrict(ctx context.Context, key string) (int64, error) {
	q := s.pool
	if s.txQuerier != nil {
		q = s.txQuerier(ctx)
	}

	var num int64
	err := q.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next %s: %w", key, err)
	}
	return num, nil
}

// nextCached serves from the in-memory range, reserving a new one when it runs out.
func (s *Service) nextCached(ctx context.Context, key string) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := s.rangeSize
		if size <= 0 {
			size = defaultRangeSize
		}

		// current_val is the last number handed out; bumping it by size
		// reserves (old, old+size].
		var newMax int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO sys_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
			RETURNING current_val
		`, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range %s: %w", key, err)
		}

		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNext makes the next number for prefix in period's year equal to value+1.
// Used when importing history from another system.
func (s *Service) SetNext(ctx context.Context, prefix string, period time.Time, value int64) error {
	key := buildKey(prefix, period)

	var result int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&result)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}

	s.cacheMu.Lock()
	delete(s.ranges, key)
	s.cacheMu.Unlock()
	return nil
}

func buildKey(prefix string, period time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, period.Format("2006"))
}

func (s *Service) format(prefix string, period time.Time, num int64) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, period.Format("2006"), s.padWidth, num)
}
