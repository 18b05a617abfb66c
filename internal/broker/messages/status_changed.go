package messages

import "time"

// ShipmentStatusChanged is published whenever reconciliation promotes a new
// canonical state for a shipment.
type ShipmentStatusChanged struct {
	ShipmentID uint64 `json:"shipment_id"`
	AccountID  uint64 `json:"account_id"`
	ExternalID string `json:"external_id"`

	PreviousStatus string `json:"previous_status,omitempty"`
	PreviousDetail string `json:"previous_detail,omitempty"`

	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`

	SyncedAt time.Time `json:"synced_at"`
	RunID    string    `json:"run_id,omitempty"`
}
