// Package service provides the principal-scoped use cases over the remote
// document store. Gateway is stateless between calls except for a
// per-principal settings cache.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/gateway")

var _ port.Gateway = (*Gateway)(nil)

const settingsKeyPrefix = "settings:"

// Gateway resolves the current principal on every call and forwards to the
// store scoped to it. Calls are never retried.
type Gateway struct {
	store      port.DataStore
	principals port.PrincipalSource
	cache      port.Cache[domain.Settings]
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
	unwatch    func()
}

// NewGateway creates the gateway. Cached settings are purged whenever the
// principal changes.
func NewGateway(
	store port.DataStore,
	principals port.PrincipalSource,
	cache port.Cache[domain.Settings],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Gateway {
	g := &Gateway{
		store:      store,
		principals: principals,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	g.unwatch = principals.OnChange(func(string) {
		if n := cache.DeletePrefix(settingsKeyPrefix); n > 0 {
			logger.Debug("purged cached settings on principal change", zap.Int("entries", n))
		}
	})
	return g
}

// Close detaches the gateway from the principal source.
func (g *Gateway) Close() {
	g.unwatch()
}

// owner returns the principal that scopes op, or ErrUnauthenticated. A call
// tagged with domain.WithPrincipal fails when the principal has changed
// since it was issued.
func (g *Gateway) owner(ctx context.Context, op string) (string, error) {
	id := g.principals.CurrentPrincipalID()
	if id == "" {
		return "", &domain.ErrUnauthenticated{Operation: op}
	}
	if want, ok := domain.PrincipalFrom(ctx); ok && want != id {
		g.logger.Debug("refused call issued for another principal",
			zap.String("operation", op),
			zap.String("issued_for", want),
			zap.String("current", id),
		)
		return "", &domain.ErrUnauthenticated{Operation: op}
	}
	return id, nil
}

// observe records duration and counts remote failures for op.
func (g *Gateway) observe(op string, start time.Time, err error) {
	g.metrics.RecordGatewayDuration(op, time.Since(start))
	if err == nil {
		return
	}
	var ext *domain.ErrExternalService
	var open *domain.ErrCircuitOpen
	if errors.As(err, &ext) || errors.As(err, &open) {
		g.metrics.IncrExternalError(op)
		g.logger.Warn("gateway call failed", zap.String("op", op), zap.Error(err))
	}
}

// ============================================================
// Customers
// ============================================================

func (g *Gateway) ListCustomers(ctx context.Context) (out []domain.Customer, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.ListCustomers")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("customers.list", start, err) }()

	owner, err := g.owner(ctx, "customers.list")
	if err != nil {
		return nil, err
	}
	return g.store.ListCustomers(ctx, owner)
}

func (g *Gateway) CreateCustomer(ctx context.Context, in *domain.CustomerInput) (out *domain.Customer, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreateCustomer")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("customers.create", start, err) }()

	owner, err := g.owner(ctx, "customers.create")
	if err != nil {
		return nil, err
	}
	return g.store.CreateCustomer(ctx, owner, in)
}

func (g *Gateway) UpdateCustomer(ctx context.Context, id string, patch *domain.CustomerPatch) (out *domain.Customer, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.UpdateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))
	start := time.Now()
	defer func() { g.observe("customers.update", start, err) }()

	owner, err := g.owner(ctx, "customers.update")
	if err != nil {
		return nil, err
	}
	return g.store.UpdateCustomer(ctx, owner, id, patch)
}

func (g *Gateway) DeleteCustomer(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "Gateway.DeleteCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))
	start := time.Now()
	defer func() { g.observe("customers.delete", start, err) }()

	owner, err := g.owner(ctx, "customers.delete")
	if err != nil {
		return err
	}
	return g.store.DeleteCustomer(ctx, owner, id)
}

// BulkImportCustomers inserts the whole list in one atomic batch: either
// every customer is created or none is.
func (g *Gateway) BulkImportCustomers(ctx context.Context, customers []domain.CustomerInput) (out *domain.ImportResult, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.BulkImportCustomers")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(customers)))
	start := time.Now()
	defer func() { g.observe("customers.import", start, err) }()

	owner, err := g.owner(ctx, "customers.import")
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return &domain.ImportResult{Success: true, Imported: 0}, nil
	}
	created, err := g.store.CreateCustomers(ctx, owner, customers)
	if err != nil {
		return nil, err
	}
	g.logger.Info("customers imported", zap.String("principal_id", owner), zap.Int("imported", len(created)))
	return &domain.ImportResult{Success: true, Imported: len(created)}, nil
}

// ============================================================
// Templates
// ============================================================

func (g *Gateway) ListTemplates(ctx context.Context) (out []domain.Template, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.ListTemplates")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("templates.list", start, err) }()

	owner, err := g.owner(ctx, "templates.list")
	if err != nil {
		return nil, err
	}
	return g.store.ListTemplates(ctx, owner)
}

func (g *Gateway) CreateTemplate(ctx context.Context, in *domain.TemplateInput) (out *domain.Template, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreateTemplate")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("templates.create", start, err) }()

	owner, err := g.owner(ctx, "templates.create")
	if err != nil {
		return nil, err
	}
	return g.store.CreateTemplate(ctx, owner, in)
}

func (g *Gateway) UpdateTemplate(ctx context.Context, id string, patch *domain.TemplatePatch) (out *domain.Template, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.UpdateTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))
	start := time.Now()
	defer func() { g.observe("templates.update", start, err) }()

	owner, err := g.owner(ctx, "templates.update")
	if err != nil {
		return nil, err
	}
	return g.store.UpdateTemplate(ctx, owner, id, patch)
}

func (g *Gateway) DeleteTemplate(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "Gateway.DeleteTemplate")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("templates.delete", start, err) }()

	owner, err := g.owner(ctx, "templates.delete")
	if err != nil {
		return err
	}
	return g.store.DeleteTemplate(ctx, owner, id)
}

// DuplicateTemplate creates a copy named "<name> (Copy)" with usage reset.
// The store assigns a fresh id and timestamps.
func (g *Gateway) DuplicateTemplate(ctx context.Context, id string) (out *domain.Template, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.DuplicateTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))
	start := time.Now()
	defer func() { g.observe("templates.duplicate", start, err) }()

	owner, err := g.owner(ctx, "templates.duplicate")
	if err != nil {
		return nil, err
	}
	src, err := g.store.GetTemplate(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	in := src.Copy()
	return g.store.CreateTemplate(ctx, owner, &in)
}

// ============================================================
// Payments
// ============================================================

func (g *Gateway) ListPayments(ctx context.Context) (out []domain.Payment, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.ListPayments")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("payments.list", start, err) }()

	owner, err := g.owner(ctx, "payments.list")
	if err != nil {
		return nil, err
	}
	return g.store.ListPayments(ctx, owner)
}

func (g *Gateway) CreatePayment(ctx context.Context, in *domain.PaymentInput) (out *domain.Payment, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreatePayment")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("payments.create", start, err) }()

	owner, err := g.owner(ctx, "payments.create")
	if err != nil {
		return nil, err
	}
	return g.store.CreatePayment(ctx, owner, in)
}

func (g *Gateway) UpdatePayment(ctx context.Context, id string, patch *domain.PaymentPatch) (out *domain.Payment, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.UpdatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", id))
	start := time.Now()
	defer func() { g.observe("payments.update", start, err) }()

	owner, err := g.owner(ctx, "payments.update")
	if err != nil {
		return nil, err
	}
	return g.store.UpdatePayment(ctx, owner, id, patch)
}

func (g *Gateway) DeletePayment(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "Gateway.DeletePayment")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("payments.delete", start, err) }()

	owner, err := g.owner(ctx, "payments.delete")
	if err != nil {
		return err
	}
	return g.store.DeletePayment(ctx, owner, id)
}
