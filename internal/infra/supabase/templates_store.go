package supabase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Templates: CRUD via PostgREST
// ============================================================

func (c *Client) ListTemplates(ctx context.Context, ownerID string) ([]domain.Template, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTemplates")
	defer span.End()

	path := ownerQuery(tableTemplates, ownerID, url.Values{"order": {newestFirst}})
	body, err := c.call(ctx, "templates", func() ([]byte, error) { return c.doGet(ctx, path) })
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows[templateRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/templates", Err: fmt.Errorf("decode templates: %w", err)}
	}
	out := make([]domain.Template, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) GetTemplate(ctx context.Context, ownerID, id string) (*domain.Template, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	q := byID(id)
	q.Set("limit", "1")
	path := ownerQuery(tableTemplates, ownerID, q)
	body, err := c.call(ctx, "templates", func() ([]byte, error) { return c.doGet(ctx, path) })
	if err != nil {
		return nil, err
	}
	return firstTemplate(body, id)
}

func (c *Client) CreateTemplate(ctx context.Context, ownerID string, in *domain.TemplateInput) (*domain.Template, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTemplate")
	defer span.End()

	body, err := c.call(ctx, "templates", func() ([]byte, error) {
		return c.doPost(ctx, tableTemplates, templateInsert(ownerID, in), preferRepresentation)
	})
	if err != nil {
		return nil, err
	}
	return firstTemplate(body, "")
}

func (c *Client) UpdateTemplate(ctx context.Context, ownerID, id string, patch *domain.TemplatePatch) (*domain.Template, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	path := ownerQuery(tableTemplates, ownerID, byID(id))
	body, err := c.call(ctx, "templates", func() ([]byte, error) {
		return c.doPatch(ctx, path, templateUpdates(patch))
	})
	if err != nil {
		return nil, err
	}
	return firstTemplate(body, id)
}

func (c *Client) DeleteTemplate(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTemplate")
	defer span.End()

	path := ownerQuery(tableTemplates, ownerID, byID(id))
	_, err := c.call(ctx, "templates", func() ([]byte, error) { return nil, c.doDelete(ctx, path) })
	return err
}

func firstTemplate(body []byte, id string) (*domain.Template, error) {
	rows, err := decodeRows[templateRow](body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/templates", Err: fmt.Errorf("decode template: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "template", ID: id}
	}
	t := rows[0].toDomain()
	return &t, nil
}
