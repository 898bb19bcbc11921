package service

import (
	"context"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Settings
// ============================================================

// ReadSettings returns the stored sections laid over the defaults. On the
// first read for a principal the defaults are persisted.
func (g *Gateway) ReadSettings(ctx context.Context) (out domain.Settings, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.ReadSettings")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("settings.read", start, err) }()

	owner, err := g.owner(ctx, "settings.read")
	if err != nil {
		return nil, err
	}
	st, err := g.readSettings(ctx, owner)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// WriteSettingsSection shallow-merges partial into the named section only
// and returns the full settings after the write.
func (g *Gateway) WriteSettingsSection(ctx context.Context, name string, partial domain.Section) (out domain.Settings, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.WriteSettingsSection")
	defer span.End()
	span.SetAttributes(attribute.String("section", name))
	start := time.Now()
	defer func() { g.observe("settings.write", start, err) }()

	owner, err := g.owner(ctx, "settings.write")
	if err != nil {
		return nil, err
	}
	if !domain.IsSettingsSection(name) {
		return nil, &domain.ErrValidation{Field: "section", Message: "unknown settings section " + name}
	}

	current, err := g.readSettings(ctx, owner)
	if err != nil {
		return nil, err
	}
	next := current.WithSection(name, partial)
	if err := g.store.PutSettingsSection(ctx, owner, name, next[name]); err != nil {
		return nil, err
	}
	g.cache.Delete(settingsKey(owner))
	return next.Clone(), nil
}

func (g *Gateway) readSettings(ctx context.Context, owner string) (domain.Settings, error) {
	key := settingsKey(owner)
	if cached, ok := g.cache.Get(key); ok {
		g.metrics.IncrCacheHit("settings")
		return cached, nil
	}
	g.metrics.IncrCacheMiss("settings")

	stored, found, err := g.store.GetSettings(ctx, owner)
	if err != nil {
		return nil, err
	}

	var st domain.Settings
	if found {
		st = stored.OverDefaults(g.now())
	} else {
		st = domain.DefaultSettings(g.now())
		for _, name := range domain.SettingsSections {
			if err := g.store.PutSettingsSection(ctx, owner, name, st[name]); err != nil {
				return nil, err
			}
		}
		g.logger.Info("initialized default settings", zap.String("principal_id", owner))
	}
	g.cache.Set(key, st)
	return st, nil
}

func settingsKey(owner string) string {
	return settingsKeyPrefix + owner
}
