package models

import (
	"fmt"
	"time"
)

// Статусы как их отдаёт платформа (enum контролирует вендор, не мы).
const (
	StatusHandling     = "handling"
	StatusReadyToShip  = "ready_to_ship"
	StatusShipped      = "shipped"
	StatusDelivered    = "delivered"
	StatusNotDelivered = "not_delivered"
	StatusCancelled    = "cancelled"
)

// Substatus (detail) codes we care about. Anything else is carried through as-is.
const (
	DetailReadyToPrint   = "ready_to_print"
	DetailPrinted        = "printed"
	DetailOutForDelivery = "out_for_delivery"
	DetailArrivingSoon   = "soon_deliver"
	DetailReceiverAbsent = "receiver_absent"
	DetailBadAddress     = "bad_address"
	DetailInaccessible   = "inaccessible_location"
	DetailAgencyClosed   = "agency_closed"
	DetailBuyerReschedule = "buyer_rescheduled"

	// DetailRescheduled is the vendor's generic bulk-reset code ("rescheduled,
	// reason unknown"). It never carries new information on its own.
	DetailRescheduled = "rescheduled"
)

// Event origins, in merge/dedup terms distinct sources of truth.
const (
	OriginHistory          = "history"
	OriginTracking         = "tracking"
	OriginSnapshotSynth    = "snapshot-synthesized"
	OriginSnapshotFallback = "snapshot-terminal-fallback"
)

// Event is one observed fact about a shipment at a point in time.
// OccurredAt is mandatory: the normalizer drops anything without a resolvable
// date instead of defaulting to "now".
type Event struct {
	ID         uint64
	ShipmentID uint64

	OccurredAt time.Time
	Status     string
	Detail     string
	Origin     string

	// RemoteID is the vendor's stable event identifier, when the feed has one.
	RemoteID string

	// Display-only fields, not part of merge/priority logic.
	Note        *string
	Location    *string
	PayloadJSON *string

	CreatedAt time.Time
}

// DedupeKey derives the identity used to keep history append-only without
// re-inserting the same fact twice. When the vendor gives a stable event id we
// trust it; otherwise identity is (origin, status, detail, second-truncated time).
func (e Event) DedupeKey() string {
	if e.RemoteID != "" {
		return e.Origin + "|" + e.RemoteID
	}
	ts := e.OccurredAt.UTC().Truncate(time.Second).Unix()
	return fmt.Sprintf("%s|%s|%s|%d", e.Origin, e.Status, e.Detail, ts)
}

// ShipmentRecord is one shipment under reconciliation. History lives in its
// own table and is loaded on demand.
type ShipmentRecord struct {
	ID        uint64
	AccountID uint64

	// OrderID is the marketplace order the shipment belongs to; used to
	// re-resolve ExternalID when the stored one turns out to be wrong.
	OrderID string

	// ExternalID is the vendor-side shipment identifier. May be corrected over
	// time by the orchestrator's self-heal step.
	ExternalID string

	CanonicalStatus string
	CanonicalDetail string
	CanonicalAt     *time.Time

	// StickyDetails — подтверждённые инциденты доставки (receiver_absent
	// и т.п.). Однажды установленный, флаг переживает шумные апдейты вендора,
	// пока статус не станет терминальным.
	StickyDetails []string

	LastSyncedAt  *time.Time
	NextSyncAt    time.Time
	SyncFailCount int32
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *ShipmentRecord) HasSticky(detail string) bool {
	for _, d := range r.StickyDetails {
		if d == detail {
			return true
		}
	}
	return false
}

type ShipmentCreateInput struct {
	AccountID  uint64
	OrderID    string
	ExternalID string
}

// Canonical is the single current state downstream systems treat as truth.
type Canonical struct {
	Status string
	Detail string
	At     time.Time
}

func (c Canonical) IsZero() bool { return c.Status == "" }

// ReconciliationSave is everything one sync cycle persists for a shipment:
// merged history, the canonical triple, sticky flags and scheduling
// bookkeeping. Storage writes it in a single transaction.
type ReconciliationSave struct {
	ShipmentID uint64
	History    []Event
	Canonical  Canonical
	Sticky     []string
	SyncedAt   time.Time
	NextSyncAt time.Time
}
