package service

import (
	"context"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExportAll reads every collection and the settings of the current
// principal concurrently. The first failure aborts the export.
func (g *Gateway) ExportAll(ctx context.Context) (out *domain.ExportSnapshot, err error) {
	ctx, span := tracer.Start(ctx, "Gateway.ExportAll")
	defer span.End()
	start := time.Now()
	defer func() { g.observe("export", start, err) }()

	owner, err := g.owner(ctx, "export")
	if err != nil {
		return nil, err
	}

	var (
		customers []domain.Customer
		templates []domain.Template
		payments  []domain.Payment
		settings  domain.Settings
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		customers, err = g.store.ListCustomers(egCtx, owner)
		return err
	})
	eg.Go(func() error {
		var err error
		templates, err = g.store.ListTemplates(egCtx, owner)
		return err
	})
	eg.Go(func() error {
		var err error
		payments, err = g.store.ListPayments(egCtx, owner)
		return err
	})
	eg.Go(func() error {
		st, err := g.readSettings(egCtx, owner)
		if err != nil {
			return err
		}
		settings = st.Clone()
		return nil
	})
	if err := eg.Wait(); err != nil {
		g.logger.Error("export failed", zap.String("principal_id", owner), zap.Error(err))
		return nil, err
	}

	return &domain.ExportSnapshot{
		Customers:  nonNil(customers),
		Templates:  nonNil(templates),
		Payments:   nonNil(payments),
		Settings:   settings,
		ExportedAt: g.now().UTC(),
		Version:    domain.ExportVersion,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
