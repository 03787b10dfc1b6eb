package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
)

func TestIdempotencyStore_Release(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore()
	req := idempotency.Request{Key: "k", ActorID: "a", Operation: "POST /stock/out", RequestHash: "h"}

	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.Acquire(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	require.NoError(t, s.Release(ctx, "k"))

	replay, err = s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay, "released key is owned again")

	require.NoError(t, s.Complete(ctx, "k", 201, "application/json", []byte(`{"ok":true}`)))
	require.NoError(t, s.Release(ctx, "k"))

	replay, err = s.Acquire(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, replay, "finished key survives release")
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(replay.Body))
}
