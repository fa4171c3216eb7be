package handler

import (
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
)

type OrderItemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	Quantity    int32  `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
}

type OrderResponse struct {
	ID            int64                `json:"id"`
	CustomerID    *int64               `json:"customer_id,omitempty"`
	Guest         *domain.GuestContact `json:"guest,omitempty"`
	AddressID     int64                `json:"address_id"`
	Status        domain.OrderStatus   `json:"status"`
	Items         []OrderItemResponse  `json:"items"`
	Payments      []domain.Payment     `json:"payments"`
	TotalAmount   int64                `json:"total_amount"`
	StockReserved bool                 `json:"stock_reserved"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func NewOrderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal(),
		}
	}

	payments := o.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}

	return OrderResponse{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		Guest:         o.Guest,
		AddressID:     o.AddressID,
		Status:        o.Status,
		Items:         items,
		Payments:      payments,
		TotalAmount:   o.TotalAmount,
		StockReserved: o.StockReserved,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type InventoryResponse struct {
	ProductID         int64 `json:"product_id"`
	AvailableQuantity int32 `json:"available_quantity"`
	ReservedQuantity  int32 `json:"reserved_quantity"`
	MinimumStockLevel int32 `json:"minimum_stock_level"`
	Low               bool  `json:"low"`
}

func NewInventoryResponse(inv *domain.Inventory) InventoryResponse {
	return InventoryResponse{
		ProductID:         inv.ProductID,
		AvailableQuantity: inv.AvailableQuantity,
		ReservedQuantity:  inv.ReservedQuantity,
		MinimumStockLevel: inv.MinimumStockLevel,
		Low:               inv.IsLow(),
	}
}
