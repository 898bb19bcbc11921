package domain

import (
	"time"
)

// ============================================================
// Payment
// ============================================================

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// Payment is a receivable owed by one customer. CustomerID is a plain
// reference and may dangle after the customer is deleted.
type Payment struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customerId"`
	Amount        Money         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	DueDate       time.Time     `json:"dueDate"`
	PaidDate      *time.Time    `json:"paidDate,omitempty"`
	Description   string        `json:"description,omitempty"`
	InvoiceNumber string        `json:"invoiceNumber,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (p Payment) EntityID() string   { return p.ID }
func (p Payment) Created() time.Time { return p.CreatedAt }

type PaymentInput struct {
	CustomerID    string        `json:"customerId"`
	Amount        Money         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	DueDate       time.Time     `json:"dueDate"`
	PaidDate      *time.Time    `json:"paidDate,omitempty"`
	Description   string        `json:"description,omitempty"`
	InvoiceNumber string        `json:"invoiceNumber,omitempty"`
}

type PaymentPatch struct {
	CustomerID    *string        `json:"customerId,omitempty"`
	Amount        *Money         `json:"amount,omitempty"`
	Status        *PaymentStatus `json:"status,omitempty"`
	DueDate       *time.Time     `json:"dueDate,omitempty"`
	PaidDate      *time.Time     `json:"paidDate,omitempty"`
	Description   *string        `json:"description,omitempty"`
	InvoiceNumber *string        `json:"invoiceNumber,omitempty"`
}

func (in PaymentInput) Validate() error {
	if in.CustomerID == "" {
		return &ErrValidation{Field: "customerId", Message: "is required"}
	}
	if in.Amount.IsNegative() {
		return &ErrValidation{Field: "amount", Message: "must not be negative"}
	}
	switch in.Status {
	case "", PaymentPending, PaymentPaid, PaymentOverdue:
		return nil
	default:
		return &ErrValidation{Field: "status", Message: "unknown status " + string(in.Status)}
	}
}

func (in PaymentInput) Entity(id string, now time.Time) Payment {
	status := in.Status
	if status == "" {
		status = PaymentPending
	}
	return Payment{
		ID:            id,
		CustomerID:    in.CustomerID,
		Amount:        in.Amount,
		Status:        status,
		DueDate:       in.DueDate,
		PaidDate:      in.PaidDate,
		Description:   in.Description,
		InvoiceNumber: in.InvoiceNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (p Payment) Input() PaymentInput {
	in := PaymentInput{
		CustomerID:    p.CustomerID,
		Amount:        p.Amount,
		Status:        p.Status,
		DueDate:       p.DueDate,
		Description:   p.Description,
		InvoiceNumber: p.InvoiceNumber,
	}
	if p.PaidDate != nil {
		pd := *p.PaidDate
		in.PaidDate = &pd
	}
	return in
}

// ValidateOn checks the payment that results from applying p to pay.
func (p PaymentPatch) ValidateOn(pay Payment) error {
	return p.Apply(pay).Input().Validate()
}

func (p PaymentPatch) Apply(pay Payment) Payment {
	if p.CustomerID != nil {
		pay.CustomerID = *p.CustomerID
	}
	if p.Amount != nil {
		pay.Amount = *p.Amount
	}
	if p.Status != nil {
		pay.Status = *p.Status
	}
	if p.DueDate != nil {
		pay.DueDate = *p.DueDate
	}
	if p.PaidDate != nil {
		d := *p.PaidDate
		pay.PaidDate = &d
	}
	if p.Description != nil {
		pay.Description = *p.Description
	}
	if p.InvoiceNumber != nil {
		pay.InvoiceNumber = *p.InvoiceNumber
	}
	return pay
}
