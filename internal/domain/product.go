package domain

import (
	"slices"
	"strings"
	"time"
)

type Category struct {
	ID         int64               `db:"id" json:"id"`
	Name       string              `db:"name" json:"name"`
	Attributes []CategoryAttribute `db:"-" json:"attributes"`
}

type CategoryAttribute struct {
	ID             int64  `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	IsKeyAttribute bool   `db:"is_key_attribute" json:"is_key_attribute"`
}

// AttributeValue is a product's value for one of its category's attributes.
type AttributeValue struct {
	AttributeID    int64  `db:"attribute_id" json:"attribute_id"`
	Name           string `db:"name" json:"name"`
	Value          string `db:"value" json:"value"`
	IsKeyAttribute bool   `db:"is_key_attribute" json:"is_key_attribute"`
}

type Product struct {
	ID          int64            `db:"id" json:"id"`
	Name        string           `db:"name" json:"name"`
	Description string           `db:"description" json:"description"`
	Price       int64            `db:"price" json:"price"`
	Category    Category         `db:"-" json:"category"`
	Attributes  []AttributeValue `db:"-" json:"attributes"`
	SKU         string           `db:"sku" json:"sku"`
	IsActive    bool             `db:"is_active" json:"is_active"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// NewProduct validates the input and resolves attribute names and key flags from the category.
func NewProduct(name, description string, price int64, category Category, values map[int64]string) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationError("product name is required")
	}
	if price < 0 {
		return nil, validationError("price must not be negative, got %d", price)
	}
	if strings.TrimSpace(category.Name) == "" {
		return nil, validationError("product category is required")
	}

	attrs := make([]AttributeValue, 0, len(values))
	for _, attr := range category.Attributes {
		value, ok := values[attr.ID]
		if !ok {
			continue
		}
		attrs = append(attrs, AttributeValue{
			AttributeID:    attr.ID,
			Name:           attr.Name,
			Value:          value,
			IsKeyAttribute: attr.IsKeyAttribute,
		})
	}
	if len(attrs) != len(values) {
		return nil, validationError("attribute does not belong to category %q", category.Name)
	}

	return &Product{
		Name:        strings.TrimSpace(name),
		Description: description,
		Price:       price,
		Category:    category,
		Attributes:  attrs,
		IsActive:    true,
	}, nil
}

// KeyAttributes returns the key attribute values ordered by attribute name.
func (p *Product) KeyAttributes() []AttributeValue {
	keys := make([]AttributeValue, 0, len(p.Attributes))
	for _, attr := range p.Attributes {
		if attr.IsKeyAttribute {
			keys = append(keys, attr)
		}
	}

	slices.SortFunc(keys, func(a, b AttributeValue) int {
		return strings.Compare(a.Name, b.Name)
	})
	return keys
}

type Address struct {
	ID         int64     `db:"id" json:"id"`
	Region     string    `db:"region" json:"region"`
	City       string    `db:"city" json:"city"`
	Street     string    `db:"street" json:"street"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	Country    string    `db:"country" json:"country"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
