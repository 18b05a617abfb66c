package meli

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Snapshot is a point-in-time read of a shipment from the platform, as
// opposed to its event history. The named milestone dates are what the
// synthesizer falls back on when the history feed comes back empty.
type Snapshot struct {
	// ID is the platform's own shipment identifier. When it differs from what
	// we have stored, the stored id is wrong (usually the carrier tracking
	// code got saved instead) and gets corrected.
	ID string

	Status    string
	Substatus string

	DateCreated      *time.Time
	DateReadyToShip  *time.Time
	DateFirstPrinted *time.Time
	DateHandling     *time.Time
	DateShipped      *time.Time
	DateDelivered    *time.Time
	DateNotDelivered *time.Time
	DateCancelled    *time.Time
	LastUpdated      *time.Time
}

// RawHistoryEntry is one row of the history feed. Date is nil when the vendor
// sent an empty or unparseable timestamp; the normalizer drops such rows.
type RawHistoryEntry struct {
	RemoteID  string
	Date      *time.Time
	Status    string
	Substatus string
	Note      *string
	Location  *string
}

// RawTracking is the loosely-typed checkpoint feed. Descriptions are
// free-text phrases, matched against a fixed table by the normalizer.
type RawTracking struct {
	Checkpoints []Checkpoint
}

type Checkpoint struct {
	Date        *time.Time
	Description string
}

type Client interface {
	// GetSnapshot returns nil without error when the shipment does not exist
	// on the platform side.
	GetSnapshot(ctx context.Context, accountID uint64, externalID string) (*Snapshot, error)

	// GetHistory may legitimately return an empty list; that is an expected
	// input for snapshot synthesis, not an error.
	GetHistory(ctx context.Context, accountID uint64, externalID string) ([]RawHistoryEntry, error)

	// GetCheckpoints is used only as a supplement when the history feed lacks
	// an in-transit / out-for-delivery milestone.
	GetCheckpoints(ctx context.Context, accountID uint64, externalID string) (*RawTracking, error)

	// ResolveShipmentIDFromOrder looks up the shipment id through the order,
	// for records whose stored external id is missing or wrong.
	ResolveShipmentIDFromOrder(ctx context.Context, accountID uint64, orderID string) (string, error)
}

// ErrNoCredential: аккаунт не привязан к платформе. Для батча это skip,
// а не ошибка.
var ErrNoCredential = errors.New("meli: no credential for account")

// APIError is a non-2xx answer from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meli api http %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the next scheduled run may succeed without any
// intervention (throttling or a vendor-side outage).
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TokenProvider returns a valid bearer credential for an account, refreshing
// it as needed. Fails with ErrNoCredential when the account is not linked.
type TokenProvider interface {
	GetCredential(ctx context.Context, accountID uint64) (string, error)
}
