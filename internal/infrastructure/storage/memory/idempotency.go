package memory

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

type idempotencyRecord struct {
	request   idempotency.Request
	status    idempotency.Status
	replay    idempotency.Replay
	updatedAt time.Time
}

// IdempotencyStore keeps idempotency keys in process memory.
// Records never expire.
type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*idempotencyRecord
	now     func() time.Time
}

// NewIdempotencyStore creates an empty idempotency store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		records: make(map[string]*idempotencyRecord),
		now:     time.Now,
	}
}

// Acquire claims the key or returns the stored reply.
func (s *IdempotencyStore) Acquire(_ context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[req.Key]
	if !ok {
		s.records[req.Key] = &idempotencyRecord{request: req, status: idempotency.StatusPending, updatedAt: now}
		return nil, nil
	}

	if rec.request != req {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", rec.request.Operation).
			WithDetail("request_operation", req.Operation)
	}

	switch rec.status {
	case idempotency.StatusSuccess, idempotency.StatusFailed:
		replay := rec.replay
		replay.Body = append([]byte(nil), rec.replay.Body...)
		return idempotency.NormalizeReplay(&replay), nil
	default:
		if now.Sub(rec.updatedAt) <= idempotency.StaleAfter {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		rec.updatedAt = now
		return nil, nil
	}
}

// Complete stores the successful response for replay.
func (s *IdempotencyStore) Complete(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	s.finish(key, idempotency.StatusSuccess, statusCode, contentType, body)
	return nil
}

// Fail stores the error response for replay.
func (s *IdempotencyStore) Fail(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	s.finish(key, idempotency.StatusFailed, statusCode, contentType, body)
	return nil
}

// Release forgets a pending key.
func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && rec.status == idempotency.StatusPending {
		delete(s.records, key)
	}
	return nil
}

func (s *IdempotencyStore) finish(key string, status idempotency.Status, statusCode int, contentType string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return
	}
	rec.status = status
	rec.replay = idempotency.Replay{
		StatusCode:  statusCode,
		ContentType: contentType,
		Body:        append([]byte(nil), body...),
	}
	rec.updatedAt = s.now()
}
