package supabase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Customers: CRUD via PostgREST
// ============================================================

func (c *Client) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCustomers")
	defer span.End()

	path := ownerQuery(tableCustomers, ownerID, url.Values{"order": {newestFirst}})
	body, err := c.call(ctx, "customers", func() ([]byte, error) { return c.doGet(ctx, path) })
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows[customerRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/customers", Err: fmt.Errorf("decode customers: %w", err)}
	}
	out := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	span.SetAttributes(attribute.Int("rows", len(out)))
	return out, nil
}

func (c *Client) CreateCustomer(ctx context.Context, ownerID string, in *domain.CustomerInput) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCustomer")
	defer span.End()

	body, err := c.call(ctx, "customers", func() ([]byte, error) {
		return c.doPost(ctx, tableCustomers, customerInsert(ownerID, in), preferRepresentation)
	})
	if err != nil {
		return nil, err
	}
	return firstCustomer(body, "")
}

func (c *Client) UpdateCustomer(ctx context.Context, ownerID, id string, patch *domain.CustomerPatch) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))

	path := ownerQuery(tableCustomers, ownerID, byID(id))
	body, err := c.call(ctx, "customers", func() ([]byte, error) {
		return c.doPatch(ctx, path, customerUpdates(patch))
	})
	if err != nil {
		return nil, err
	}
	return firstCustomer(body, id)
}

func (c *Client) DeleteCustomer(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))

	path := ownerQuery(tableCustomers, ownerID, byID(id))
	_, err := c.call(ctx, "customers", func() ([]byte, error) { return nil, c.doDelete(ctx, path) })
	return err
}

// CreateCustomers posts every row in one request. PostgREST runs a
// multi-row insert as a single statement, so the batch commits or fails
// as a whole.
func (c *Client) CreateCustomers(ctx context.Context, ownerID string, in []domain.CustomerInput) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCustomers")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(in)))

	if len(in) == 0 {
		return []domain.Customer{}, nil
	}
	payload := make([]map[string]any, 0, len(in))
	for i := range in {
		payload = append(payload, customerInsert(ownerID, &in[i]))
	}

	body, err := c.call(ctx, "customers", func() ([]byte, error) {
		return c.doPost(ctx, tableCustomers, payload, preferRepresentation)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[customerRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/customers", Err: fmt.Errorf("decode batch: %w", err)}
	}
	out := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func firstCustomer(body []byte, id string) (*domain.Customer, error) {
	rows, err := decodeRows[customerRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/customers", Err: fmt.Errorf("decode customer: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: id}
	}
	c := rows[0].toDomain()
	return &c, nil
}
