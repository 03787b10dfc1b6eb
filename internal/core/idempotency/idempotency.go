// Package idempotency defines the contract for replaying responses of retried requests.
package idempotency

import (
	"context"
	"time"
)

// Status of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may stay unfinished before another request may reclaim it.
const StaleAfter = time.Minute

// Request identifies one idempotent call.
type Request struct {
	Key         string
	ActorID     string
	Operation   string
	RequestHash string
}

// Replay is the stored HTTP response of a finished call.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store keeps idempotency keys.
//
// Acquire returns (nil, nil) when the caller owns the key and must run the operation,
// a Replay when the operation already finished, or an error when the key is
// in use by a concurrent request or was used for a different request.
//
// Fail stores a deterministic error reply for replay. Release drops a pending key
// so a retry with the same key runs the operation again.
type Store interface {
	Acquire(ctx context.Context, req Request) (*Replay, error)
	Complete(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	Fail(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	Release(ctx context.Context, key string) error
}

// NormalizeReplay fills defaults for records stored without status or content type.
func NormalizeReplay(r *Replay) *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = 200
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}
