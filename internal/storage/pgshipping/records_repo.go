package pgshipping

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/santirms/zupply-app-sub000/internal/models"
)

// Статусы, после которых запись по-хорошему не трогаем. Держим здесь своей
// копией: selection работает в SQL и не должен зависеть от резолвера.
var terminalStatuses = []string{models.StatusDelivered, models.StatusCancelled}

// raceWindow: терминальная запись, у которой история ещё не догнала
// canonical, остаётся выбираемой в течение этого окна.
const raceWindow = 2 * time.Hour

const shipmentColumns = `
  id, account_id, order_id, external_id,
  canonical_status, canonical_detail, canonical_at,
  sticky_details,
  last_synced_at, next_sync_at,
  sync_fail_count, last_error,
  created_at, updated_at`

func scanShipment(rows pgx.Rows) (*models.ShipmentRecord, error) {
	var r models.ShipmentRecord
	if err := rows.Scan(
		&r.ID, &r.AccountID, &r.OrderID, &r.ExternalID,
		&r.CanonicalStatus, &r.CanonicalDetail, &r.CanonicalAt,
		&r.StickyDetails,
		&r.LastSyncedAt, &r.NextSyncAt,
		&r.SyncFailCount, &r.LastError,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}
	return &r, nil
}

func (s *Storage) CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.ShipmentRecord, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO shipments (
  account_id, order_id, external_id, next_sync_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (account_id, order_id)
DO UPDATE SET updated_at = shipments.updated_at
RETURNING id
`, it.AccountID, it.OrderID, it.ExternalID, now, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert shipment")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetShipmentsByIDs(ctx, ids)
}

func (s *Storage) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.ShipmentRecord, error) {
	if len(ids) == 0 {
		return []*models.ShipmentRecord{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.ShipmentRecord, 0, len(ids))
	for rows.Next() {
		r, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ClaimPendingRecords выбирает пачку записей для сверки и "бронирует" их
// (SELECT ... FOR UPDATE SKIP LOCKED + сдвиг next_sync_at на lease), чтобы
// параллельные воркеры не обрабатывали одну запись дважды.
//
// Выбираются:
//   - не-терминальные, у которых подошёл next_sync_at;
//   - терминальные, чей canonical выставлен недавно, а история ещё не
//     содержит терминального события (гонка canonical-раньше-истории).
//
// Терминальная ветка тоже обязана уважать lease: у забронированной записи
// next_sync_at лежит в (now, now+lease], у сохранённой терминальной он
// отодвинут далеко вперёд, поэтому фильтр "<= now или > now+lease" отсекает
// только чужие брони.
func (s *Storage) ClaimPendingRecords(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.ShipmentRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	leaseUntil := now.UTC().Add(lease)

	rows, err := tx.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE
  (next_sync_at <= $1 AND canonical_status <> ALL($2))
  OR (
    canonical_status = ANY($2)
    AND canonical_at > $3
    AND (next_sync_at <= $1 OR next_sync_at > $5)
    AND NOT EXISTS (
      SELECT 1 FROM shipment_events e
      WHERE e.shipment_id = shipments.id AND e.status = shipments.canonical_status
    )
  )
ORDER BY next_sync_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), terminalStatuses, now.UTC().Add(-raceWindow), limit, leaseUntil)
	if err != nil {
		return nil, errors.Wrap(err, "select pending shipments")
	}
	defer rows.Close()

	var picked []*models.ShipmentRecord
	for rows.Next() {
		r, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		picked = append(picked, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	for _, r := range picked {
		if _, err := tx.Exec(ctx, `UPDATE shipments SET next_sync_at = $2, updated_at = now() WHERE id = $1`, r.ID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		r.NextSyncAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// UpdateExternalID — идемпотентная коррекция идентификатора (self-heal
// оркестратора). Вызывается явно, не как побочный эффект чтения.
func (s *Storage) UpdateExternalID(ctx context.Context, shipmentID uint64, externalID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE shipments SET external_id = $2, updated_at = now() WHERE id = $1`,
		shipmentID, externalID)
	return errors.Wrap(err, "update external id")
}

func (s *Storage) MarkSyncError(ctx context.Context, shipmentID uint64, at time.Time, errMsg string, nextSyncAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  last_synced_at = $2,
  sync_fail_count = sync_fail_count + 1,
  last_error = $3,
  next_sync_at = $4,
  updated_at = now()
WHERE id = $1
`, shipmentID, at.UTC(), errMsg, nextSyncAt.UTC())
	return errors.Wrap(err, "mark sync error")
}
