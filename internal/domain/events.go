package domain

import "time"

const (
	TopicOrderEvents   = "order_events"
	TopicPaymentEvents = "payment_events"
	TopicProductEvents = "product_events"

	EventOrderCreated         = "OrderCreated"
	EventOrderConfirmed       = "OrderConfirmed"
	EventOrderShipped         = "OrderShipped"
	EventOrderCancelled       = "OrderCancelled"
	EventPaymentStatusChanged = "PaymentStatusChanged"
	EventProductCreated       = "ProductCreated"
)

// Recipient identifies who should hear about an order.
type Recipient struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

func (o *Order) Recipient() Recipient {
	r := Recipient{CustomerID: o.CustomerID}
	if o.Guest != nil {
		r.Email = o.Guest.Email
	}
	return r
}

type EventItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
	Price     int64 `json:"price"`
}

func eventItems(items []OrderItem) []EventItem {
	result := make([]EventItem, len(items))
	for i, item := range items {
		result[i] = EventItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	return result
}

type PaymentStatusChangedEvent struct {
	PaymentID int64         `json:"payment_id"`
	OrderID   int64         `json:"order_id"`
	Amount    int64         `json:"amount"`
	OldStatus PaymentStatus `json:"old_status"`
	NewStatus PaymentStatus `json:"new_status"`
	Reason    string        `json:"reason,omitempty"`
	ChangedAt time.Time     `json:"changed_at"`
}

type OrderCreatedEvent struct {
	OrderID     int64       `json:"order_id"`
	Recipient   Recipient   `json:"recipient"`
	Region      string      `json:"region"`
	TotalAmount int64       `json:"total_amount"`
	Items       []EventItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewOrderCreatedEvent(o *Order, region string) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		OrderID:     o.ID,
		Recipient:   o.Recipient(),
		Region:      region,
		TotalAmount: o.TotalAmount,
		Items:       eventItems(o.Items),
		CreatedAt:   o.CreatedAt,
	}
}

type OrderConfirmedEvent struct {
	OrderID     int64     `json:"order_id"`
	PaymentID   int64     `json:"payment_id"`
	Recipient   Recipient `json:"recipient"`
	TotalAmount int64     `json:"total_amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type OrderShippedEvent struct {
	OrderID   int64     `json:"order_id"`
	Recipient Recipient `json:"recipient"`
	ShippedAt time.Time `json:"shipped_at"`
}

// OrderCancelledEvent carries PaymentFailed when a declined or cancelled payment caused
// the cancellation.
type OrderCancelledEvent struct {
	OrderID       int64       `json:"order_id"`
	PaymentID     *int64      `json:"payment_id,omitempty"`
	Recipient     Recipient   `json:"recipient"`
	Reason        string      `json:"reason"`
	PaymentFailed bool        `json:"payment_failed"`
	Released      []EventItem `json:"released"`
	CancelledAt   time.Time   `json:"cancelled_at"`
}

type ProductCreatedEvent struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price"`
}
