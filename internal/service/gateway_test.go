package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/cache"
	"github.com/boddenberg/payping-sync-go/internal/infra/memstore"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type fakePrincipal struct {
	mu  sync.Mutex
	id  string
	fns []func(string)
}

func (p *fakePrincipal) CurrentPrincipalID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *fakePrincipal) OnChange(fn func(string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fns = append(p.fns, fn)
	return func() {}
}

func (p *fakePrincipal) set(id string) {
	p.mu.Lock()
	p.id = id
	fns := append([]func(string){}, p.fns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

type fixture struct {
	store     *memstore.Store
	principal *fakePrincipal
	metrics   *observability.Metrics
	gw        *service.Gateway
}

func newFixture(t *testing.T, principalID string) *fixture {
	t.Helper()
	store := memstore.New()
	p := &fakePrincipal{id: principalID}
	c := cache.New[domain.Settings](5 * time.Minute)
	t.Cleanup(c.Close)
	m := observability.NewMetrics()
	gw := service.NewGateway(store, p, c, m, zap.NewNop())
	t.Cleanup(gw.Close)
	return &fixture{store: store, principal: p, metrics: m, gw: gw}
}

// --- Tests ---

func TestCustomerRoundTrip(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	in := &domain.CustomerInput{
		Name:          "Ada",
		Email:         "ada@example.com",
		TotalOwed:     domain.NewMoney(decimal.RequireFromString("120.50")),
		OverdueAmount: domain.NewMoney(decimal.RequireFromString("20")),
		Status:        domain.CustomerOverdue,
	}
	created, err := f.gw.CreateCustomer(ctx, in)
	require.NoError(t, err)

	list, err := f.gw.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.Email, got.Email)
	assert.True(t, in.TotalOwed.Equal(got.TotalOwed.Decimal))
	assert.Equal(t, domain.CustomerOverdue, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestListOrderedNewestFirst(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	for _, n := range []string{"t1", "t2", "t3"} {
		_, err := f.gw.CreateTemplate(ctx, &domain.TemplateInput{Type: domain.TemplateSMS, Name: n, Content: "hi"})
		require.NoError(t, err)
	}

	list, err := f.gw.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
	assert.Equal(t, "t3", list[0].Name)
}

func TestUnauthenticated_NoRemoteCall(t *testing.T) {
	f := newFixture(t, "")
	called := false
	f.store.SetFault(func(string, int) error {
		called = true
		return nil
	})

	_, err := f.gw.ListPayments(context.Background())

	var unauth *domain.ErrUnauthenticated
	require.True(t, errors.As(err, &unauth))
	assert.Equal(t, "payments.list", unauth.Operation)
	assert.False(t, called)

	_, err = f.gw.ExportAll(context.Background())
	assert.True(t, errors.As(err, &unauth))
}

func TestBulkImport_AllOrNothing(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	batch := []domain.CustomerInput{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	f.store.SetFault(func(op string, index int) error {
		if op == "customers.batch" && index == 1 {
			return errors.New("write rejected")
		}
		return nil
	})

	_, err := f.gw.BulkImportCustomers(ctx, batch)
	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))

	f.store.SetFault(nil)
	list, err := f.gw.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	res, err := f.gw.BulkImportCustomers(ctx, batch)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Imported)

	list, err = f.gw.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestBulkImport_Empty(t *testing.T) {
	f := newFixture(t, "u1")

	res, err := f.gw.BulkImportCustomers(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
}

func TestDuplicateTemplate(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	src, err := f.gw.CreateTemplate(ctx, &domain.TemplateInput{
		Type: domain.TemplateEmail, Name: "Reminder", Subject: "Due", Content: "Pay {{amount}}",
		Variables: []string{"amount"},
	})
	require.NoError(t, err)
	usage := 7
	_, err = f.gw.UpdateTemplate(ctx, src.ID, &domain.TemplatePatch{Usage: &usage})
	require.NoError(t, err)

	dup, err := f.gw.DuplicateTemplate(ctx, src.ID)
	require.NoError(t, err)

	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "Reminder (Copy)", dup.Name)
	assert.Equal(t, 0, dup.Usage)
	assert.Equal(t, src.Subject, dup.Subject)
	assert.Equal(t, src.Content, dup.Content)
	assert.Equal(t, src.Variables, dup.Variables)
	assert.Equal(t, src.Type, dup.Type)
}

func TestDuplicateTemplate_Missing(t *testing.T) {
	f := newFixture(t, "u1")

	_, err := f.gw.DuplicateTemplate(context.Background(), "nope")

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestReadSettings_DefaultsPersistedOnFirstRead(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	st, err := f.gw.ReadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USD", st[domain.SectionPayment]["currency"])

	stored, found, err := f.store.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, stored, len(domain.SettingsSections))
}

func TestWriteSettingsSection_PartialMergeLeavesSiblings(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	before, err := f.gw.ReadSettings(ctx)
	require.NoError(t, err)

	after, err := f.gw.WriteSettingsSection(ctx, domain.SectionCompany, domain.Section{"name": "Acme"})
	require.NoError(t, err)

	assert.Equal(t, "Acme", after[domain.SectionCompany]["name"])
	assert.Equal(t, before[domain.SectionCompany]["email"], after[domain.SectionCompany]["email"])
	for _, name := range domain.SettingsSections {
		if name == domain.SectionCompany {
			continue
		}
		assert.Equal(t, before[name], after[name], "section %s changed", name)
	}

	reread, err := f.gw.ReadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", reread[domain.SectionCompany]["name"])
}

func TestWriteSettingsSection_UnknownSection(t *testing.T) {
	f := newFixture(t, "u1")

	_, err := f.gw.WriteSettingsSection(context.Background(), "bogus", domain.Section{"x": 1})

	var v *domain.ErrValidation
	assert.True(t, errors.As(err, &v))
}

func TestSettingsCache_NotSharedAcrossPrincipals(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	_, err := f.gw.WriteSettingsSection(ctx, domain.SectionCompany, domain.Section{"name": "U1 Co"})
	require.NoError(t, err)
	_, err = f.gw.ReadSettings(ctx)
	require.NoError(t, err)

	f.principal.set("u2")
	st, err := f.gw.ReadSettings(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "U1 Co", st[domain.SectionCompany]["name"])
}

func TestExportAll(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	_, err := f.gw.CreateCustomer(ctx, &domain.CustomerInput{Name: "a"})
	require.NoError(t, err)
	_, err = f.gw.CreatePayment(ctx, &domain.PaymentInput{CustomerID: "c", Amount: domain.MoneyFromInt(3)})
	require.NoError(t, err)

	snap, err := f.gw.ExportAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.ExportVersion, snap.Version)
	assert.Len(t, snap.Customers, 1)
	assert.Len(t, snap.Payments, 1)
	assert.NotNil(t, snap.Templates)
	assert.Contains(t, snap.Settings, domain.SectionSubscription)
	assert.False(t, snap.ExportedAt.IsZero())
}

func TestExportAll_FailsAsWhole(t *testing.T) {
	f := newFixture(t, "u1")
	f.store.SetFault(func(op string, _ int) error {
		if op == "payments.list" {
			return errors.New("timeout")
		}
		return nil
	})

	snap, err := f.gw.ExportAll(context.Background())
	assert.Nil(t, snap)
	assert.Error(t, err)
}

func TestRemoteErrorCounted(t *testing.T) {
	f := newFixture(t, "u1")
	f.store.SetFault(func(string, int) error { return errors.New("down") })

	_, err := f.gw.ListCustomers(context.Background())
	require.Error(t, err)

	assert.Equal(t, float64(1), f.metrics.GetSyncSnapshot().ExternalErrors)
}
