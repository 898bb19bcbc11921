package supabase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Payments: CRUD via PostgREST
// ============================================================

func (c *Client) ListPayments(ctx context.Context, ownerID string) ([]domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPayments")
	defer span.End()

	path := ownerQuery(tablePayments, ownerID, url.Values{"order": {newestFirst}})
	body, err := c.call(ctx, "payments", func() ([]byte, error) { return c.doGet(ctx, path) })
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows[paymentRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/payments", Err: fmt.Errorf("decode payments: %w", err)}
	}
	out := make([]domain.Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) CreatePayment(ctx context.Context, ownerID string, in *domain.PaymentInput) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePayment")
	defer span.End()

	body, err := c.call(ctx, "payments", func() ([]byte, error) {
		return c.doPost(ctx, tablePayments, paymentInsert(ownerID, in), preferRepresentation)
	})
	if err != nil {
		return nil, err
	}
	return firstPayment(body, "")
}

func (c *Client) UpdatePayment(ctx context.Context, ownerID, id string, patch *domain.PaymentPatch) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", id))

	path := ownerQuery(tablePayments, ownerID, byID(id))
	body, err := c.call(ctx, "payments", func() ([]byte, error) {
		return c.doPatch(ctx, path, paymentUpdates(patch))
	})
	if err != nil {
		return nil, err
	}
	return firstPayment(body, id)
}

func (c *Client) DeletePayment(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeletePayment")
	defer span.End()

	path := ownerQuery(tablePayments, ownerID, byID(id))
	_, err := c.call(ctx, "payments", func() ([]byte, error) { return nil, c.doDelete(ctx, path) })
	return err
}

func firstPayment(body []byte, id string) (*domain.Payment, error) {
	rows, err := decodeRows[paymentRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/payments", Err: fmt.Errorf("decode payment: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "payment", ID: id}
	}
	p := rows[0].toDomain()
	return &p, nil
}
