package appdata

import (
	"context"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks ids of records not yet confirmed by the remote store.
const ProvisionalPrefix = "pending-"

func provisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// issue tags ctx with the principal of the current snapshot and returns the
// snapshot's epoch.
func (s *Store) issue(ctx context.Context) (context.Context, uint64) {
	snap := s.Snapshot()
	return domain.WithPrincipal(ctx, snap.PrincipalID), snap.Epoch
}

// Every method below captures the principal and epoch when it is called.
// The gateway refuses the call once the principal has changed, and results
// that arrive after a principal change or reload are dropped by the reducer.
// Failures are recorded in the error slots and returned; optimistic changes
// are not rolled back.

// ============================================================
// Customers
// ============================================================

func (s *Store) AddCustomer(ctx context.Context, in domain.CustomerInput) (*domain.Customer, error) {
	ctx, epoch := s.issue(ctx)
	provisional := in.Entity(provisionalID(), s.now())

	s.Dispatch(LoadingSet{Epoch: epoch, Loading: true})
	s.Dispatch(CustomerAdded{Epoch: epoch, Customer: provisional})

	created, err := s.gateway.CreateCustomer(ctx, &in)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionCustomers, "customers.create", err)
	}
	s.Dispatch(CustomerConfirmed{Epoch: epoch, ProvisionalID: provisional.ID, Customer: *created})
	s.Dispatch(LoadingSet{Epoch: epoch, Loading: false})
	return created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, id string, patch domain.CustomerPatch) (*domain.Customer, error) {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(CustomerUpdated{Epoch: epoch, ID: id, Patch: patch})

	updated, err := s.gateway.UpdateCustomer(ctx, id, &patch)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionCustomers, "customers.update", err)
	}
	s.Dispatch(CustomerConfirmed{Epoch: epoch, ProvisionalID: id, Customer: *updated})
	return updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(CustomerRemoved{Epoch: epoch, ID: id})

	if err := s.gateway.DeleteCustomer(ctx, id); err != nil {
		return s.fail(epoch, domain.CollectionCustomers, "customers.delete", err)
	}
	return nil
}

func (s *Store) ToggleCustomerReminders(ctx context.Context, id string, enabled bool) (*domain.Customer, error) {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(CustomerRemindersToggled{Epoch: epoch, ID: id, Enabled: enabled})

	updated, err := s.gateway.UpdateCustomer(ctx, id, &domain.CustomerPatch{RemindersEnabled: &enabled})
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionCustomers, "customers.toggle_reminders", err)
	}
	s.Dispatch(CustomerConfirmed{Epoch: epoch, ProvisionalID: id, Customer: *updated})
	return updated, nil
}

// BulkImportCustomers inserts the batch atomically and then replaces the
// customer collection with a fresh list.
func (s *Store) BulkImportCustomers(ctx context.Context, customers []domain.CustomerInput) (*domain.ImportResult, error) {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(LoadingSet{Epoch: epoch, Loading: true})

	res, err := s.gateway.BulkImportCustomers(ctx, customers)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionCustomers, "customers.import", err)
	}
	list, err := s.gateway.ListCustomers(ctx)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionCustomers, "customers.list", err)
	}
	s.Dispatch(CollectionReplaced{Epoch: epoch, Collection: domain.CollectionCustomers, Customers: list})
	return res, nil
}

// ============================================================
// Templates
// ============================================================

func (s *Store) AddTemplate(ctx context.Context, in domain.TemplateInput) (*domain.Template, error) {
	ctx, epoch := s.issue(ctx)
	provisional := in.Entity(provisionalID(), s.now())

	s.Dispatch(LoadingSet{Epoch: epoch, Loading: true})
	s.Dispatch(TemplateAdded{Epoch: epoch, Template: provisional})

	created, err := s.gateway.CreateTemplate(ctx, &in)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionTemplates, "templates.create", err)
	}
	s.Dispatch(TemplateConfirmed{Epoch: epoch, ProvisionalID: provisional.ID, Template: *created})
	s.Dispatch(LoadingSet{Epoch: epoch, Loading: false})
	return created, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, id string, patch domain.TemplatePatch) (*domain.Template, error) {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(TemplateUpdated{Epoch: epoch, ID: id, Patch: patch})

	updated, err := s.gateway.UpdateTemplate(ctx, id, &patch)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionTemplates, "templates.update", err)
	}
	s.Dispatch(TemplateConfirmed{Epoch: epoch, ProvisionalID: id, Template: *updated})
	return updated, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(TemplateRemoved{Epoch: epoch, ID: id})

	if err := s.gateway.DeleteTemplate(ctx, id); err != nil {
		return s.fail(epoch, domain.CollectionTemplates, "templates.delete", err)
	}
	return nil
}

// DuplicateTemplate shows the copy immediately when the source is held
// locally, then confirms it with the stored duplicate.
func (s *Store) DuplicateTemplate(ctx context.Context, id string) (*domain.Template, error) {
	snap := s.Snapshot()
	epoch := snap.Epoch
	ctx = domain.WithPrincipal(ctx, snap.PrincipalID)

	var pending string
	if src, ok := snap.Template(id); ok {
		provisional := src.Copy().Entity(provisionalID(), s.now())
		pending = provisional.ID
		s.Dispatch(TemplateAdded{Epoch: epoch, Template: provisional})
	}

	dup, err := s.gateway.DuplicateTemplate(ctx, id)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionTemplates, "templates.duplicate", err)
	}
	s.Dispatch(TemplateConfirmed{Epoch: epoch, ProvisionalID: pending, Template: *dup})
	return dup, nil
}

// ============================================================
// Payments
// ============================================================

func (s *Store) AddPayment(ctx context.Context, in domain.PaymentInput) (*domain.Payment, error) {
	ctx, epoch := s.issue(ctx)
	provisional := in.Entity(provisionalID(), s.now())

	s.Dispatch(LoadingSet{Epoch: epoch, Loading: true})
	s.Dispatch(PaymentAdded{Epoch: epoch, Payment: provisional})

	created, err := s.gateway.CreatePayment(ctx, &in)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionPayments, "payments.create", err)
	}
	s.Dispatch(PaymentConfirmed{Epoch: epoch, ProvisionalID: provisional.ID, Payment: *created})
	s.Dispatch(LoadingSet{Epoch: epoch, Loading: false})
	return created, nil
}

func (s *Store) UpdatePayment(ctx context.Context, id string, patch domain.PaymentPatch) (*domain.Payment, error) {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(PaymentUpdated{Epoch: epoch, ID: id, Patch: patch})

	updated, err := s.gateway.UpdatePayment(ctx, id, &patch)
	if err != nil {
		return nil, s.fail(epoch, domain.CollectionPayments, "payments.update", err)
	}
	s.Dispatch(PaymentConfirmed{Epoch: epoch, ProvisionalID: id, Payment: *updated})
	return updated, nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(PaymentRemoved{Epoch: epoch, ID: id})

	if err := s.gateway.DeletePayment(ctx, id); err != nil {
		return s.fail(epoch, domain.CollectionPayments, "payments.delete", err)
	}
	return nil
}

// ============================================================
// Settings
// ============================================================

// UpdateSettings merges data into one section locally, writes it, and then
// applies the full settings returned by the write.
func (s *Store) UpdateSettings(ctx context.Context, section string, data domain.Section) (domain.Settings, error) {
	ctx, epoch := s.issue(ctx)
	if !domain.IsSettingsSection(section) {
		err := &domain.ErrValidation{Field: "section", Message: "unknown settings section " + section}
		return nil, s.fail(epoch, CollectionSettings, "settings.write", err)
	}
	s.Dispatch(SettingsSectionUpdated{Epoch: epoch, Section: section, Partial: data})

	st, err := s.gateway.WriteSettingsSection(ctx, section, data)
	if err != nil {
		return nil, s.fail(epoch, CollectionSettings, "settings.write", err)
	}
	s.Dispatch(SettingsLoaded{Epoch: epoch, Settings: st})
	return st, nil
}

// GetSubscription reads the subscription section from the remote store.
func (s *Store) GetSubscription(ctx context.Context) (domain.Section, error) {
	ctx, epoch := s.issue(ctx)

	st, err := s.gateway.ReadSettings(ctx)
	if err != nil {
		return nil, s.fail(epoch, CollectionSettings, "subscription.read", err)
	}
	sub := st[domain.SectionSubscription]
	s.Dispatch(SubscriptionLoaded{Epoch: epoch, Subscription: sub})
	return sub.Clone(), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, data domain.Section) (domain.Section, error) {
	ctx, epoch := s.issue(ctx)
	s.Dispatch(SettingsSectionUpdated{Epoch: epoch, Section: domain.SectionSubscription, Partial: data})

	st, err := s.gateway.WriteSettingsSection(ctx, domain.SectionSubscription, data)
	if err != nil {
		return nil, s.fail(epoch, CollectionSettings, "subscription.write", err)
	}
	sub := st[domain.SectionSubscription]
	s.Dispatch(SubscriptionLoaded{Epoch: epoch, Subscription: sub})
	return sub.Clone(), nil
}

// ============================================================
// Export, errors, reload
// ============================================================

func (s *Store) ExportData(ctx context.Context) (*domain.ExportSnapshot, error) {
	ctx, epoch := s.issue(ctx)

	snap, err := s.gateway.ExportAll(ctx)
	if err != nil {
		return nil, s.fail(epoch, "", "export", err)
	}
	return snap, nil
}

func (s *Store) ClearError() {
	s.Dispatch(ErrorCleared{})
}

// Refresh re-runs the initial load for the current principal. Push channels
// close while the reload is in progress and reopen once it succeeds.
func (s *Store) Refresh(ctx context.Context) error {
	if s.Snapshot().PrincipalID == "" {
		return &domain.ErrUnauthenticated{Operation: "refresh"}
	}
	st, ok := s.apply(ReloadStarted{})
	if !ok {
		return &domain.ErrUnauthenticated{Operation: "refresh"}
	}
	return s.loadAll(ctx, st.PrincipalID, st.Epoch)
}
