package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
)

var _ inventory.IncidentRecorder = (*IncidentStore)(nil)

// CompressionAlgo specifies the compression algorithm used for a snapshot.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 4 * 1024

// incidentRow is a row of sys_incidents.
type incidentRow struct {
	ID                 id.ID           `db:"id"`
	ItemID             id.ID           `db:"item_id"`
	Operation          string          `db:"operation"`
	Message            string          `db:"message"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	DetectedAt         time.Time       `db:"detected_at"`
}

// IncidentStore persists inventory inconsistencies in sys_incidents.
// Item snapshots can list hundreds of batches, so large payloads are zstd compressed.
type IncidentStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewIncidentStore creates a new incident store.
func NewIncidentStore(txManager *TxManager) (*IncidentStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &IncidentStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// RecordIncident inserts the incident. It runs on whatever querier ctx carries,
// which after a rolled back command is the pool.
func (s *IncidentStore) RecordIncident(ctx context.Context, incident inventory.Incident) error {
	if id.IsNil(incident.ID) {
		incident.ID = id.New()
	}
	if incident.DetectedAt.IsZero() {
		incident.DetectedAt = time.Now().UTC()
	}

	row, err := s.encode(incident)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("sys_incidents").
		Columns(ExtractDBColumns[incidentRow]()...).
		Values(row.ID, row.ItemID, row.Operation, row.Message,
			row.Snapshot, row.SnapshotCompressed, row.CompressionAlgo, row.DetectedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert incident: %w", err)
	}

	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// ListIncidents returns incidents newest first, optionally for one item.
func (s *IncidentStore) ListIncidents(ctx context.Context, itemID *id.ID, limit int) ([]inventory.Incident, error) {
	q := sq.Select(ExtractDBColumns[incidentRow]()...).
		From("sys_incidents").
		OrderBy("detected_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)
	if itemID != nil {
		q = q.Where(sq.Eq{"item_id": *itemID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list incidents: %w", err)
	}

	var rows []incidentRow
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	out := make([]inventory.Incident, 0, len(rows))
	for _, r := range rows {
		inc, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, nil
}

func (s *IncidentStore) encode(incident inventory.Incident) (incidentRow, error) {
	payload, err := json.Marshal(incident.Snapshot)
	if err != nil {
		return incidentRow{}, fmt.Errorf("marshal incident snapshot: %w", err)
	}

	row := incidentRow{
		ID:              incident.ID,
		ItemID:          incident.ItemID,
		Operation:       incident.Operation,
		Message:         incident.Message,
		Snapshot:        payload,
		CompressionAlgo: CompressionNone,
		DetectedAt:      incident.DetectedAt,
	}
	if len(payload) > s.compressThreshold {
		row.SnapshotCompressed = s.encoder.EncodeAll(payload, nil)
		row.Snapshot = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row, nil
}

func (s *IncidentStore) decode(row incidentRow) (inventory.Incident, error) {
	payload := row.Snapshot
	if row.CompressionAlgo == CompressionZstd && len(row.SnapshotCompressed) > 0 {
		decompressed, err := s.decoder.DecodeAll(row.SnapshotCompressed, nil)
		if err != nil {
			return inventory.Incident{}, fmt.Errorf("decompress incident %s: %w", row.ID, err)
		}
		payload = decompressed
	}

	var snapshot map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return inventory.Incident{}, fmt.Errorf("unmarshal incident %s: %w", row.ID, err)
		}
	}

	return inventory.Incident{
		ID:         row.ID,
		ItemID:     row.ItemID,
		Operation:  row.Operation,
		Message:    row.Message,
		Snapshot:   snapshot,
		DetectedAt: row.DetectedAt,
	}, nil
}
