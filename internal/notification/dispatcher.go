package notification

import (
	"context"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
)

type Kind string

const (
	KindOrderReceived     Kind = "ORDER_RECEIVED"
	KindOrderConfirmation Kind = "ORDER_CONFIRMATION"
	KindShipmentNotice    Kind = "SHIPMENT_NOTICE"
	KindPaymentFailure    Kind = "PAYMENT_FAILURE"
	KindOrderCancelled    Kind = "ORDER_CANCELLED"
	KindLowStock          Kind = "LOW_STOCK"
)

// Command asks the delivery side to tell someone about an event. Delivery is best effort.
type Command struct {
	Kind      Kind             `json:"kind"`
	OrderID   int64            `json:"order_id,omitempty"`
	ProductID int64            `json:"product_id,omitempty"`
	Recipient domain.Recipient `json:"recipient"`
	Reason    string           `json:"reason,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	IssuedAt  time.Time        `json:"issued_at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}
