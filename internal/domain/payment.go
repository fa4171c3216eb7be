package domain

import (
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodTransfer       PaymentMethod = "TRANSFER"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch method {
	case PaymentMethodCard, PaymentMethodTransfer, PaymentMethodCashOnDelivery:
		return method, nil
	}
	return "", validationError("unknown payment method %q", s)
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return status, nil
	}
	return "", validationError("unknown payment status %q", s)
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

type Payment struct {
	ID              int64         `db:"id" json:"id"`
	OrderID         int64         `db:"order_id" json:"order_id"`
	Amount          int64         `db:"amount" json:"amount"`
	Method          PaymentMethod `db:"method" json:"method"`
	Status          PaymentStatus `db:"status" json:"status"`
	Reference       string        `db:"reference" json:"reference"`
	TransactionID   *string       `db:"transaction_id" json:"transaction_id,omitempty"`
	TransactionDate time.Time     `db:"transaction_date" json:"transaction_date"`
	Notes           string        `db:"notes" json:"notes"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// NewPayment records an attempt to pay for an order. Every payment starts PENDING.
func NewPayment(orderID, amount int64, method PaymentMethod, reference, notes string) (*Payment, error) {
	if orderID <= 0 {
		return nil, validationError("invalid order id %d", orderID)
	}
	if amount <= 0 {
		return nil, validationError("payment amount must be positive, got %d", amount)
	}
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}

	return &Payment{
		OrderID:   orderID,
		Amount:    amount,
		Method:    method,
		Status:    PaymentStatusPending,
		Reference: reference,
		Notes:     notes,
	}, nil
}

// Settle moves a PENDING payment into a terminal status and returns the status it left.
// A payment settles exactly once.
func (p *Payment) Settle(to PaymentStatus, transactionID string, at time.Time) (PaymentStatus, error) {
	if !to.IsTerminal() {
		return "", validationError("payment can only settle to a terminal status, got %q", to)
	}
	if p.Status != PaymentStatusPending {
		return "", invalidStateError("payment %d already settled as %s", p.ID, p.Status)
	}

	old := p.Status
	p.Status = to
	p.TransactionDate = at
	if transactionID != "" {
		p.TransactionID = &transactionID
	}

	return old, nil
}
