package domain

import (
	"slices"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "NEW"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// Trigger names what drives a status change. Payment outcomes are the only way out of NEW.
type Trigger string

const (
	TriggerPayment     Trigger = "payment"
	TriggerFulfillment Trigger = "fulfillment"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusCompleted, OrderStatusRefunded},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", validationError("unknown order status %q", s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransition reports whether trigger may move an order from one status to another.
func CanTransition(from, to OrderStatus, trigger Trigger) bool {
	if !slices.Contains(orderTransitions[from], to) {
		return false
	}
	if from == OrderStatusNew {
		return trigger == TriggerPayment
	}
	return trigger == TriggerFulfillment
}

// GuestContact is denormalized onto orders placed without a customer account.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Order struct {
	ID            int64         `db:"id"`
	CustomerID    *int64        `db:"customer_id"`
	Guest         *GuestContact `db:"-"`
	AddressID     int64         `db:"address_id"`
	Status        OrderStatus   `db:"status"`
	Items         []OrderItem   `db:"-"`
	Payments      []Payment     `db:"-"`
	TotalAmount   int64         `db:"total_amount"`
	StockReserved bool          `db:"stock_reserved"`
	IsActive      bool          `db:"is_active"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderItem struct {
	ID          int64  `db:"id"`
	OrderID     int64  `db:"order_id"`
	ProductID   int64  `db:"product_id"`
	ProductName string `db:"product_name"`
	Price       int64  `db:"price"`
	Quantity    int32  `db:"quantity"`
}

func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// NewOrder starts an empty NEW order owned either by a customer or by a guest.
func NewOrder(customerID *int64, guest *GuestContact, addressID int64) (*Order, error) {
	switch {
	case customerID == nil && guest == nil:
		return nil, validationError("order needs a customer or guest contact")
	case customerID != nil && guest != nil:
		return nil, validationError("order cannot have both a customer and a guest contact")
	case customerID != nil && *customerID <= 0:
		return nil, validationError("invalid customer id %d", *customerID)
	case guest != nil && strings.TrimSpace(guest.Email) == "":
		return nil, validationError("guest email is required")
	case addressID <= 0:
		return nil, validationError("shipping address is required")
	}

	return &Order{
		CustomerID: customerID,
		Guest:      guest,
		AddressID:  addressID,
		Status:     OrderStatusNew,
		IsActive:   true,
	}, nil
}

func (o *Order) IsGuest() bool {
	return o.CustomerID == nil
}

// Mutable reports whether items may still be added or removed.
func (o *Order) Mutable() bool {
	return o.IsActive && o.Status == OrderStatusNew
}

func (o *Order) Subtotal() int64 {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// CalculateTotal derives the total from the current items without touching TotalAmount.
func (o *Order) CalculateTotal(policy ShippingPolicy) int64 {
	return policy.Total(o.Subtotal())
}

func (o *Order) RecalculateTotal(policy ShippingPolicy) int64 {
	o.TotalAmount = o.CalculateTotal(policy)
	return o.TotalAmount
}

// Verify recomputes the total and reports whether the stored value agreed with it.
// The recomputed value always wins.
func (o *Order) Verify(policy ShippingPolicy) bool {
	stored := o.TotalAmount
	return o.RecalculateTotal(policy) == stored
}

// AddItem appends a line priced from the product at this moment. Later product price
// changes do not affect the line.
func (o *Order) AddItem(product *Product, quantity int32, policy ShippingPolicy) (*OrderItem, error) {
	if product == nil {
		return nil, validationError("product is required")
	}
	if quantity <= 0 {
		return nil, validationError("quantity must be positive, got %d", quantity)
	}
	if !product.IsActive {
		return nil, validationError("product %d is not available", product.ID)
	}
	if !o.Mutable() {
		return nil, invalidStateError("order %d is %s, items cannot be added", o.ID, o.Status)
	}

	o.Items = append(o.Items, OrderItem{
		OrderID:     o.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.Price,
		Quantity:    quantity,
	})
	o.RecalculateTotal(policy)

	return &o.Items[len(o.Items)-1], nil
}

// RemoveItem drops the line with itemID. It returns false when no such line exists.
func (o *Order) RemoveItem(itemID int64, policy ShippingPolicy) (bool, error) {
	if !o.Mutable() {
		return false, invalidStateError("order %d is %s, items cannot be removed", o.ID, o.Status)
	}

	idx := slices.IndexFunc(o.Items, func(item OrderItem) bool { return item.ID == itemID })
	if idx < 0 {
		return false, nil
	}

	o.Items = slices.Delete(o.Items, idx, idx+1)
	o.RecalculateTotal(policy)

	return true, nil
}

func (o *Order) FindItem(itemID int64) (OrderItem, bool) {
	idx := slices.IndexFunc(o.Items, func(item OrderItem) bool { return item.ID == itemID })
	if idx < 0 {
		return OrderItem{}, false
	}
	return o.Items[idx], true
}

// Transition moves the order along the lifecycle graph. Terminal states accept nothing.
func (o *Order) Transition(to OrderStatus, trigger Trigger) error {
	if !to.Valid() {
		return validationError("unknown order status %q", to)
	}
	if !o.IsActive {
		return invalidStateError("order %d is deleted", o.ID)
	}
	if !CanTransition(o.Status, to, trigger) {
		return invalidStateError("order %d cannot move from %s to %s via %s", o.ID, o.Status, to, trigger)
	}

	o.Status = to
	return nil
}

// Delete tombstones a finished order.
func (o *Order) Delete() error {
	if !o.IsActive {
		return nil
	}
	if !o.Status.IsTerminal() {
		return invalidStateError("order %d is %s, only finished orders can be deleted", o.ID, o.Status)
	}

	o.IsActive = false
	return nil
}

// Quantities sums item quantities per product.
func (o *Order) Quantities() map[int64]int32 {
	result := make(map[int64]int32, len(o.Items))
	for _, item := range o.Items {
		result[item.ProductID] += item.Quantity
	}
	return result
}
