package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
)

func newTestIncidentStore(t *testing.T) *IncidentStore {
	t.Helper()
	s, err := NewIncidentStore(nil)
	require.NoError(t, err)
	return s
}

func TestIncidentStore_EncodeSmallSnapshot(t *testing.T) {
	s := newTestIncidentStore(t)

	inc := inventory.Incident{
		ID:         id.New(),
		ItemID:     id.New(),
		Operation:  "stock_out",
		Message:    "aggregate quantity exceeds the sum of live batches",
		Snapshot:   map[string]any{"aggregate": "8.0000", "batch_total": "5.0000"},
		DetectedAt: time.Now().UTC(),
	}

	row, err := s.encode(inc)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.Nil(t, row.SnapshotCompressed)

	got, err := s.decode(row)
	require.NoError(t, err)
	assert.Equal(t, inc.Snapshot, got.Snapshot)
	assert.Equal(t, inc.ItemID, got.ItemID)
}

func TestIncidentStore_CompressesLargeSnapshot(t *testing.T) {
	s := newTestIncidentStore(t)

	batches := make([]any, 0, 200)
	for i := range 200 {
		batches = append(batches, map[string]any{
			"batch_id": id.New().String(),
			"quantity": fmt.Sprintf("%d.0000", i),
		})
	}
	inc := inventory.Incident{
		ID:       id.New(),
		ItemID:   id.New(),
		Snapshot: map[string]any{"batches": batches},
	}

	row, err := s.encode(inc)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Snapshot)
	assert.NotEmpty(t, row.SnapshotCompressed)

	got, err := s.decode(row)
	require.NoError(t, err)
	assert.Len(t, got.Snapshot["batches"], 200)
}

func TestIncidentRow_Columns(t *testing.T) {
	assert.Equal(t, []string{
		"id", "item_id", "operation", "message", "snapshot",
		"snapshot_compressed", "compression_algo", "detected_at",
	}, ExtractDBColumns[incidentRow]())
}
