package port

import (
	"context"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

// Gateway is the principal-scoped facade the local store talks to. Calls
// without a signed-in principal fail with *domain.ErrUnauthenticated.
type Gateway interface {
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, in *domain.CustomerInput) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, id string, patch *domain.CustomerPatch) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	ListTemplates(ctx context.Context) ([]domain.Template, error)
	CreateTemplate(ctx context.Context, in *domain.TemplateInput) (*domain.Template, error)
	UpdateTemplate(ctx context.Context, id string, patch *domain.TemplatePatch) (*domain.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	DuplicateTemplate(ctx context.Context, id string) (*domain.Template, error)

	ListPayments(ctx context.Context) ([]domain.Payment, error)
	CreatePayment(ctx context.Context, in *domain.PaymentInput) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, id string, patch *domain.PaymentPatch) (*domain.Payment, error)
	DeletePayment(ctx context.Context, id string) error

	ReadSettings(ctx context.Context) (domain.Settings, error)
	WriteSettingsSection(ctx context.Context, name string, partial domain.Section) (domain.Settings, error)

	BulkImportCustomers(ctx context.Context, customers []domain.CustomerInput) (*domain.ImportResult, error)
	ExportAll(ctx context.Context) (*domain.ExportSnapshot, error)
}
