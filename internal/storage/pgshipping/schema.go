package pgshipping

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  account_id BIGINT NOT NULL,
  order_id TEXT NOT NULL DEFAULT '',
  external_id TEXT NOT NULL DEFAULT '',
  canonical_status TEXT NOT NULL DEFAULT '',
  canonical_detail TEXT NOT NULL DEFAULT '',
  canonical_at TIMESTAMPTZ NULL,
  sticky_details TEXT[] NOT NULL DEFAULT '{}',
  last_synced_at TIMESTAMPTZ NULL,
  next_sync_at TIMESTAMPTZ NOT NULL,
  sync_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (account_id, order_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_next_sync_at ON shipments(next_sync_at)`,
		`
CREATE TABLE IF NOT EXISTS shipment_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  occurred_at TIMESTAMPTZ NOT NULL,
  status TEXT NOT NULL,
  detail TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL,
  remote_id TEXT NOT NULL DEFAULT '',
  note TEXT NULL,
  location TEXT NULL,
  payload JSONB NULL,
  dedupe_key TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_events_shipment_id_occurred_at ON shipment_events(shipment_id, occurred_at)`,
		// История append-only: уникальность на уровне БД страхует мердж.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipment_events_dedup ON shipment_events(shipment_id, dedupe_key)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
