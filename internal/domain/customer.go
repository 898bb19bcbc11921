package domain

import (
	"time"
)

// ============================================================
// Customer
// ============================================================

// CustomerStatus is the billing standing of a customer.
type CustomerStatus string

const (
	CustomerCurrent CustomerStatus = "current"
	CustomerOverdue CustomerStatus = "overdue"
	CustomerPaid    CustomerStatus = "paid"
)

// Customer is a payer tracked by the business.
type Customer struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	Company          string         `json:"company,omitempty"`
	Address          string         `json:"address,omitempty"`
	TotalOwed        Money          `json:"totalOwed"`
	OverdueAmount    Money          `json:"overdueAmount"`
	Status           CustomerStatus `json:"status"`
	RemindersEnabled bool           `json:"remindersEnabled"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func (c Customer) EntityID() string   { return c.ID }
func (c Customer) Created() time.Time { return c.CreatedAt }

// CustomerInput carries the client-supplied fields of a new customer.
type CustomerInput struct {
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	Company          string         `json:"company,omitempty"`
	Address          string         `json:"address,omitempty"`
	TotalOwed        Money          `json:"totalOwed"`
	OverdueAmount    Money          `json:"overdueAmount"`
	Status           CustomerStatus `json:"status"`
	RemindersEnabled bool           `json:"remindersEnabled"`
}

// CustomerPatch is a partial update; nil fields are left untouched.
type CustomerPatch struct {
	Name             *string         `json:"name,omitempty"`
	Email            *string         `json:"email,omitempty"`
	Phone            *string         `json:"phone,omitempty"`
	Company          *string         `json:"company,omitempty"`
	Address          *string         `json:"address,omitempty"`
	TotalOwed        *Money          `json:"totalOwed,omitempty"`
	OverdueAmount    *Money          `json:"overdueAmount,omitempty"`
	Status           *CustomerStatus `json:"status,omitempty"`
	RemindersEnabled *bool           `json:"remindersEnabled,omitempty"`
}

// Validate checks the shape invariants the presentation boundary enforces
// before a customer reaches the gateway.
func (in CustomerInput) Validate() error {
	if in.Name == "" {
		return &ErrValidation{Field: "name", Message: "is required"}
	}
	if in.TotalOwed.IsNegative() {
		return &ErrValidation{Field: "totalOwed", Message: "must not be negative"}
	}
	if in.OverdueAmount.IsNegative() {
		return &ErrValidation{Field: "overdueAmount", Message: "must not be negative"}
	}
	switch in.Status {
	case "", CustomerCurrent, CustomerPaid:
	case CustomerOverdue:
		if !in.OverdueAmount.IsPositive() {
			return &ErrValidation{Field: "overdueAmount", Message: "must be positive when status is overdue"}
		}
	default:
		return &ErrValidation{Field: "status", Message: "unknown status " + string(in.Status)}
	}
	return nil
}

// Entity builds a provisional customer from the input. The remote store
// replaces id and timestamps on confirmation.
func (in CustomerInput) Entity(id string, now time.Time) Customer {
	status := in.Status
	if status == "" {
		status = CustomerCurrent
	}
	return Customer{
		ID:               id,
		Name:             in.Name,
		Email:            in.Email,
		Phone:            in.Phone,
		Company:          in.Company,
		Address:          in.Address,
		TotalOwed:        in.TotalOwed,
		OverdueAmount:    in.OverdueAmount,
		Status:           status,
		RemindersEnabled: in.RemindersEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Input returns the user-editable fields of c.
func (c Customer) Input() CustomerInput {
	return CustomerInput{
		Name:             c.Name,
		Email:            c.Email,
		Phone:            c.Phone,
		Company:          c.Company,
		Address:          c.Address,
		TotalOwed:        c.TotalOwed,
		OverdueAmount:    c.OverdueAmount,
		Status:           c.Status,
		RemindersEnabled: c.RemindersEnabled,
	}
}

// ValidateOn checks the customer that results from applying p to c.
func (p CustomerPatch) ValidateOn(c Customer) error {
	return p.Apply(c).Input().Validate()
}

// Apply returns c with the patch fields overlaid.
func (p CustomerPatch) Apply(c Customer) Customer {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Company != nil {
		c.Company = *p.Company
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	if p.TotalOwed != nil {
		c.TotalOwed = *p.TotalOwed
	}
	if p.OverdueAmount != nil {
		c.OverdueAmount = *p.OverdueAmount
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.RemindersEnabled != nil {
		c.RemindersEnabled = *p.RemindersEnabled
	}
	return c
}

// ImportResult reports the outcome of an atomic bulk import.
type ImportResult struct {
	Success  bool `json:"success"`
	Imported int  `json:"imported"`
}
