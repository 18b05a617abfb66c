package messages

import "time"

// OrderCreated приходит от order-сервиса при создании заказа с доставкой.
// ShipmentID может быть пустым: тогда воркер добудет его сам через заказ.
type OrderCreated struct {
	AccountID  uint64    `json:"account_id"`
	OrderID    string    `json:"order_id"`
	ShipmentID string    `json:"shipment_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
