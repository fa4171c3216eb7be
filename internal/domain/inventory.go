package domain

import (
	"fmt"
	"math"
	"time"
)

// Inventory is the stock ledger row of one product. Available stock can be sold;
// reserved stock is held for orders awaiting payment.
type Inventory struct {
	ID                int64     `db:"id" json:"id"`
	ProductID         int64     `db:"product_id" json:"product_id"`
	AvailableQuantity int32     `db:"available_quantity" json:"available_quantity"`
	ReservedQuantity  int32     `db:"reserved_quantity" json:"reserved_quantity"`
	MinimumStockLevel int32     `db:"minimum_stock_level" json:"minimum_stock_level"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func NewInventory(productID int64, available, minimum int32) (*Inventory, error) {
	if productID <= 0 {
		return nil, validationError("invalid product id %d", productID)
	}
	if available < 0 || minimum < 0 {
		return nil, validationError("stock levels must not be negative")
	}

	return &Inventory{
		ProductID:         productID,
		AvailableQuantity: available,
		MinimumStockLevel: minimum,
		IsActive:          true,
	}, nil
}

// Reserve moves quantity from available to reserved.
func (i *Inventory) Reserve(quantity int32) error {
	if err := positive(quantity); err != nil {
		return err
	}
	if i.AvailableQuantity < quantity {
		return i.insufficient(quantity)
	}

	i.AvailableQuantity -= quantity
	i.ReservedQuantity += quantity
	return nil
}

// Release returns quantity from reserved to available.
func (i *Inventory) Release(quantity int32) error {
	if err := positive(quantity); err != nil {
		return err
	}
	if i.ReservedQuantity < quantity {
		return invalidStateError("product %d has %d reserved, cannot release %d", i.ProductID, i.ReservedQuantity, quantity)
	}

	i.ReservedQuantity -= quantity
	i.AvailableQuantity += quantity
	return nil
}

// Commit consumes previously reserved stock: the goods have been sold.
func (i *Inventory) Commit(quantity int32) error {
	if err := positive(quantity); err != nil {
		return err
	}
	if i.ReservedQuantity < quantity {
		return invalidStateError("product %d has %d reserved, cannot commit %d", i.ProductID, i.ReservedQuantity, quantity)
	}

	i.ReservedQuantity -= quantity
	return nil
}

// Deduct sells stock that was never reserved.
func (i *Inventory) Deduct(quantity int32) error {
	if err := positive(quantity); err != nil {
		return err
	}
	if i.AvailableQuantity < quantity {
		return i.insufficient(quantity)
	}

	i.AvailableQuantity -= quantity
	return nil
}

// Adjust applies a manual correction to available stock.
func (i *Inventory) Adjust(delta int32) error {
	if delta == 0 {
		return validationError("adjustment must not be zero")
	}
	if int64(i.AvailableQuantity)+int64(delta) < 0 {
		return invalidStateError("adjusting product %d by %d would leave %d available",
			i.ProductID, delta, int64(i.AvailableQuantity)+int64(delta))
	}
	if int64(i.AvailableQuantity)+int64(delta) > math.MaxInt32 {
		return validationError("adjustment of %d overflows stock of product %d", delta, i.ProductID)
	}

	i.AvailableQuantity += delta
	return nil
}

// IsLow reports whether available stock fell under the advisory minimum.
func (i *Inventory) IsLow() bool {
	return i.AvailableQuantity < i.MinimumStockLevel
}

func (i *Inventory) insufficient(requested int32) error {
	return fmt.Errorf("%w: product %d requested %d, available %d",
		ErrInsufficientStock, i.ProductID, requested, i.AvailableQuantity)
}

func positive(quantity int32) error {
	if quantity <= 0 {
		return validationError("quantity must be positive, got %d", quantity)
	}
	return nil
}

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
)

// Reservation records stock held for one order line.
type Reservation struct {
	ID          int64             `db:"id" json:"id"`
	OrderID     int64             `db:"order_id" json:"order_id"`
	OrderItemID *int64            `db:"order_item_id" json:"order_item_id,omitempty"`
	ProductID   int64             `db:"product_id" json:"product_id"`
	Quantity    int32             `db:"quantity" json:"quantity"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}
