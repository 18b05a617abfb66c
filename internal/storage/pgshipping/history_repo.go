package pgshipping

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/santirms/zupply-app-sub000/internal/models"
)

func (s *Storage) LoadHistory(ctx context.Context, shipmentID uint64) ([]models.Event, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, shipment_id, occurred_at, status, detail, origin, remote_id,
  note, location, payload, created_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY occurred_at ASC, id ASC
`, shipmentID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		var payload *string
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.OccurredAt, &e.Status, &e.Detail, &e.Origin, &e.RemoteID,
			&e.Note, &e.Location, &payload, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.PayloadJSON = payload
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SaveReconciliation persists merged history and the canonical triple in one
// transaction. Events are inserted with ON CONFLICT DO NOTHING on the dedupe
// key, so replaying a merge is a no-op.
func (s *Storage) SaveReconciliation(ctx context.Context, in models.ReconciliationSave) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sticky := in.Sticky
	if sticky == nil {
		sticky = []string{}
	}

	if in.Canonical.IsZero() {
		// Сверка прошла, но канонического статуса так и нет (нет ни событий,
		// ни snapshot). Фиксируем только факт синхронизации.
		_, err = tx.Exec(ctx, `
UPDATE shipments
SET last_synced_at = $2, next_sync_at = $3, sync_fail_count = 0, last_error = NULL, updated_at = now()
WHERE id = $1
`, in.ShipmentID, in.SyncedAt.UTC(), in.NextSyncAt.UTC())
	} else {
		_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  canonical_status = $2,
  canonical_detail = $3,
  canonical_at = $4,
  sticky_details = $5,
  last_synced_at = $6,
  next_sync_at = $7,
  sync_fail_count = 0,
  last_error = NULL,
  updated_at = now()
WHERE id = $1
`, in.ShipmentID, in.Canonical.Status, in.Canonical.Detail, in.Canonical.At.UTC(),
			sticky, in.SyncedAt.UTC(), in.NextSyncAt.UTC())
	}
	if err != nil {
		return errors.Wrap(err, "update shipment")
	}

	for _, e := range in.History {
		var payload any
		if e.PayloadJSON != nil && *e.PayloadJSON != "" {
			payload = *e.PayloadJSON
		}
		_, err := tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, occurred_at, status, detail, origin, remote_id,
  note, location, payload, dedupe_key, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (shipment_id, dedupe_key) DO NOTHING
`, in.ShipmentID, e.OccurredAt.UTC(), e.Status, e.Detail, e.Origin, e.RemoteID,
			e.Note, e.Location, payload, e.DedupeKey())
		if err != nil {
			return errors.Wrap(err, "insert shipment event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
