package supabase

import (
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

// ============================================================
// Table rows (snake_case columns) and their domain mapping
// ============================================================

type customerRow struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Name             string       `json:"name"`
	Email            string       `json:"email"`
	Phone            string       `json:"phone"`
	Company          string       `json:"company"`
	Address          string       `json:"address"`
	TotalOwed        domain.Money `json:"total_owed"`
	OverdueAmount    domain.Money `json:"overdue_amount"`
	Status           string       `json:"status"`
	RemindersEnabled bool         `json:"reminders_enabled"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		Phone:            r.Phone,
		Company:          r.Company,
		Address:          r.Address,
		TotalOwed:        r.TotalOwed,
		OverdueAmount:    r.OverdueAmount,
		Status:           domain.CustomerStatus(r.Status),
		RemindersEnabled: r.RemindersEnabled,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// customerInsert leaves id and timestamps to column defaults.
func customerInsert(ownerID string, in *domain.CustomerInput) map[string]any {
	status := in.Status
	if status == "" {
		status = domain.CustomerCurrent
	}
	return map[string]any{
		"user_id":           ownerID,
		"name":              in.Name,
		"email":             in.Email,
		"phone":             in.Phone,
		"company":           in.Company,
		"address":           in.Address,
		"total_owed":        in.TotalOwed,
		"overdue_amount":    in.OverdueAmount,
		"status":            string(status),
		"reminders_enabled": in.RemindersEnabled,
	}
}

func customerUpdates(p *domain.CustomerPatch) map[string]any {
	u := map[string]any{}
	if p.Name != nil {
		u["name"] = *p.Name
	}
	if p.Email != nil {
		u["email"] = *p.Email
	}
	if p.Phone != nil {
		u["phone"] = *p.Phone
	}
	if p.Company != nil {
		u["company"] = *p.Company
	}
	if p.Address != nil {
		u["address"] = *p.Address
	}
	if p.TotalOwed != nil {
		u["total_owed"] = *p.TotalOwed
	}
	if p.OverdueAmount != nil {
		u["overdue_amount"] = *p.OverdueAmount
	}
	if p.Status != nil {
		u["status"] = string(*p.Status)
	}
	if p.RemindersEnabled != nil {
		u["reminders_enabled"] = *p.RemindersEnabled
	}
	return u
}

type templateRow struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	Subject   string     `json:"subject"`
	Content   string     `json:"content"`
	Variables []string   `json:"variables"`
	Usage     int        `json:"usage"`
	LastUsed  *time.Time `json:"last_used"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r templateRow) toDomain() domain.Template {
	return domain.Template{
		ID:        r.ID,
		Type:      domain.TemplateType(r.Type),
		Name:      r.Name,
		Subject:   r.Subject,
		Content:   r.Content,
		Variables: r.Variables,
		Usage:     r.Usage,
		LastUsed:  r.LastUsed,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// templateInsert leaves usage at 0 and last_used to the column default.
func templateInsert(ownerID string, in *domain.TemplateInput) map[string]any {
	vars := in.Variables
	if vars == nil {
		vars = []string{}
	}
	return map[string]any{
		"user_id":   ownerID,
		"type":      string(in.Type),
		"name":      in.Name,
		"subject":   in.Subject,
		"content":   in.Content,
		"variables": vars,
	}
}

func templateUpdates(p *domain.TemplatePatch) map[string]any {
	u := map[string]any{}
	if p.Type != nil {
		u["type"] = string(*p.Type)
	}
	if p.Name != nil {
		u["name"] = *p.Name
	}
	if p.Subject != nil {
		u["subject"] = *p.Subject
	}
	if p.Content != nil {
		u["content"] = *p.Content
	}
	if p.Variables != nil {
		u["variables"] = *p.Variables
	}
	if p.Usage != nil {
		u["usage"] = *p.Usage
	}
	if p.LastUsed != nil {
		u["last_used"] = p.LastUsed.UTC()
	}
	return u
}

type paymentRow struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	CustomerID    string       `json:"customer_id"`
	Amount        domain.Money `json:"amount"`
	Status        string       `json:"status"`
	DueDate       time.Time    `json:"due_date"`
	PaidDate      *time.Time   `json:"paid_date"`
	Description   string       `json:"description"`
	InvoiceNumber string       `json:"invoice_number"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (r paymentRow) toDomain() domain.Payment {
	return domain.Payment{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		Amount:        r.Amount,
		Status:        domain.PaymentStatus(r.Status),
		DueDate:       r.DueDate,
		PaidDate:      r.PaidDate,
		Description:   r.Description,
		InvoiceNumber: r.InvoiceNumber,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func paymentInsert(ownerID string, in *domain.PaymentInput) map[string]any {
	status := in.Status
	if status == "" {
		status = domain.PaymentPending
	}
	m := map[string]any{
		"user_id":        ownerID,
		"customer_id":    in.CustomerID,
		"amount":         in.Amount,
		"status":         string(status),
		"due_date":       in.DueDate.UTC(),
		"description":    in.Description,
		"invoice_number": in.InvoiceNumber,
	}
	if in.PaidDate != nil {
		m["paid_date"] = in.PaidDate.UTC()
	}
	return m
}

func paymentUpdates(p *domain.PaymentPatch) map[string]any {
	u := map[string]any{}
	if p.CustomerID != nil {
		u["customer_id"] = *p.CustomerID
	}
	if p.Amount != nil {
		u["amount"] = *p.Amount
	}
	if p.Status != nil {
		u["status"] = string(*p.Status)
	}
	if p.DueDate != nil {
		u["due_date"] = p.DueDate.UTC()
	}
	if p.PaidDate != nil {
		u["paid_date"] = p.PaidDate.UTC()
	}
	if p.Description != nil {
		u["description"] = *p.Description
	}
	if p.InvoiceNumber != nil {
		u["invoice_number"] = *p.InvoiceNumber
	}
	return u
}
