package port

import (
	"context"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

// DataStore is the owner-scoped remote document store. Every method takes
// the owning principal explicitly; the store assigns ids and timestamps.
// Implemented by the Supabase adapter and by the in-memory backend.
type DataStore interface {
	CustomerStore
	TemplateStore
	PaymentStore
	SettingsStore
}

type CustomerStore interface {
	ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, ownerID string, in *domain.CustomerInput) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, ownerID, id string, patch *domain.CustomerPatch) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, ownerID, id string) error
	// CreateCustomers inserts every input in one atomic batch.
	CreateCustomers(ctx context.Context, ownerID string, in []domain.CustomerInput) ([]domain.Customer, error)
}

type TemplateStore interface {
	ListTemplates(ctx context.Context, ownerID string) ([]domain.Template, error)
	GetTemplate(ctx context.Context, ownerID, id string) (*domain.Template, error)
	CreateTemplate(ctx context.Context, ownerID string, in *domain.TemplateInput) (*domain.Template, error)
	UpdateTemplate(ctx context.Context, ownerID, id string, patch *domain.TemplatePatch) (*domain.Template, error)
	DeleteTemplate(ctx context.Context, ownerID, id string) error
}

type PaymentStore interface {
	ListPayments(ctx context.Context, ownerID string) ([]domain.Payment, error)
	CreatePayment(ctx context.Context, ownerID string, in *domain.PaymentInput) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, ownerID, id string, patch *domain.PaymentPatch) (*domain.Payment, error)
	DeletePayment(ctx context.Context, ownerID, id string) error
}

type SettingsStore interface {
	// GetSettings returns the stored sections; found is false when the
	// settings document does not exist yet.
	GetSettings(ctx context.Context, ownerID string) (settings domain.Settings, found bool, err error)
	// PutSettingsSection replaces one section, creating the document if needed.
	// Sibling sections are never written.
	PutSettingsSection(ctx context.Context, ownerID, name string, section domain.Section) error
}

// ChangeFeed signals remote changes to one collection of one owner. The
// returned channel is closed when ctx is cancelled or the feed fails.
type ChangeFeed interface {
	Watch(ctx context.Context, ownerID string, collection domain.Collection) (<-chan struct{}, error)
}
