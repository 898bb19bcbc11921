package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Settings: one row per owner, one jsonb column per section
// ============================================================

func (c *Client) GetSettings(ctx context.Context, ownerID string) (domain.Settings, bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSettings")
	defer span.End()

	path := ownerQuery(tableSettings, ownerID, url.Values{"limit": {"1"}})
	body, err := c.call(ctx, "settings", func() ([]byte, error) { return c.doGet(ctx, path) })
	if err != nil {
		return nil, false, err
	}

	rows, err := decodeRows[map[string]json.RawMessage](body)
	if err != nil {
		return nil, false, &domain.ErrExternalService{Service: "supabase/settings", Err: fmt.Errorf("decode settings: %w", err)}
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	out := domain.Settings{}
	for _, name := range domain.SettingsSections {
		raw, ok := rows[0][name]
		if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var sec domain.Section
		if err := json.Unmarshal(raw, &sec); err != nil {
			return nil, false, &domain.ErrExternalService{Service: "supabase/settings", Err: fmt.Errorf("decode section %s: %w", name, err)}
		}
		out[name] = sec
	}
	span.SetAttributes(attribute.Int("sections", len(out)))
	return out, true, nil
}

// PutSettingsSection upserts the owner row writing only the named column.
func (c *Client) PutSettingsSection(ctx context.Context, ownerID, name string, section domain.Section) error {
	ctx, span := tracer.Start(ctx, "Supabase.PutSettingsSection")
	defer span.End()
	span.SetAttributes(attribute.String("section", name))

	if !domain.IsSettingsSection(name) {
		return &domain.ErrValidation{Field: "section", Message: "unknown settings section " + name}
	}

	path := tableSettings + "?" + url.Values{"on_conflict": {"user_id"}}.Encode()
	payload := map[string]any{"user_id": ownerID, name: section}
	_, err := c.call(ctx, "settings", func() ([]byte, error) {
		return c.doPost(ctx, path, payload, preferUpsert)
	})
	return err
}
