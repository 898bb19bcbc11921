// Package memstore is an in-process stand-in for the hosted document store.
// It stamps ids and timestamps server-side, applies batches atomically and
// signals changes to watchers, so it backs local development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"github.com/oklog/ulid/v2"
)

var (
	_ port.DataStore  = (*Store)(nil)
	_ port.ChangeFeed = (*Store)(nil)
)

// Fault, when set, is consulted before each operation. index is the
// position inside a batch, or -1 for single-record operations.
type Fault func(op string, index int) error

type ownerData struct {
	customers map[string]domain.Customer
	templates map[string]domain.Template
	payments  map[string]domain.Payment
	settings  domain.Settings
}

// Store is a thread-safe, owner-partitioned in-memory document store.
type Store struct {
	mu        sync.Mutex
	owners    map[string]*ownerData
	watchers  map[watchKey]map[chan struct{}]struct{}
	now       func() time.Time
	lastStamp time.Time
	fault     Fault
}

type watchKey struct {
	owner      string
	collection domain.Collection
}

// New creates an empty store using the wall clock.
func New() *Store {
	return &Store{
		owners:   make(map[string]*ownerData),
		watchers: make(map[watchKey]map[chan struct{}]struct{}),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// SetFault installs (or clears, with nil) the fault injector.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Store) check(op string, index int) error {
	if s.fault == nil {
		return nil
	}
	if err := s.fault(op, index); err != nil {
		return &domain.ErrExternalService{Service: "memstore/" + op, Err: err}
	}
	return nil
}

// stamp returns a server timestamp strictly after every previous one.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

func (s *Store) owner(id string) *ownerData {
	o, ok := s.owners[id]
	if !ok {
		o = &ownerData{
			customers: make(map[string]domain.Customer),
			templates: make(map[string]domain.Template),
			payments:  make(map[string]domain.Payment),
		}
		s.owners[id] = o
	}
	return o
}

func newID() string {
	return ulid.Make().String()
}

// newestFirst orders by creation time descending, id descending on ties.
func newestFirst[T domain.Entity](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := items[i].Created(), items[j].Created()
		if ci.Equal(cj) {
			return items[i].EntityID() > items[j].EntityID()
		}
		return ci.After(cj)
	})
}

// ============================================================
// Customers
// ============================================================

func (s *Store) ListCustomers(_ context.Context, ownerID string) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("customers.list", -1); err != nil {
		return nil, err
	}
	o := s.owner(ownerID)
	out := make([]domain.Customer, 0, len(o.customers))
	for _, c := range o.customers {
		out = append(out, c)
	}
	newestFirst(out)
	return out, nil
}

func (s *Store) CreateCustomer(_ context.Context, ownerID string, in *domain.CustomerInput) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("customers.create", -1); err != nil {
		return nil, err
	}
	c := in.Entity(newID(), s.stamp())
	s.owner(ownerID).customers[c.ID] = c
	s.notify(ownerID, domain.CollectionCustomers)
	return &c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, ownerID, id string, patch *domain.CustomerPatch) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("customers.update", -1); err != nil {
		return nil, err
	}
	o := s.owner(ownerID)
	c, ok := o.customers[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: id}
	}
	c = patch.Apply(c)
	c.UpdatedAt = s.stamp()
	o.customers[id] = c
	s.notify(ownerID, domain.CollectionCustomers)
	return &c, nil
}

func (s *Store) DeleteCustomer(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("customers.delete", -1); err != nil {
		return err
	}
	delete(s.owner(ownerID).customers, id)
	s.notify(ownerID, domain.CollectionCustomers)
	return nil
}

// CreateCustomers stages every record first and commits only when all of
// them succeeded, so a failure leaves the collection untouched.
func (s *Store) CreateCustomers(_ context.Context, ownerID string, in []domain.CustomerInput) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("customers.batch", -1); err != nil {
		return nil, err
	}
	staged := make([]domain.Customer, 0, len(in))
	for i := range in {
		if err := s.check("customers.batch", i); err != nil {
			return nil, fmt.Errorf("batch aborted at record %d: %w", i, err)
		}
		staged = append(staged, in[i].Entity(newID(), s.stamp()))
	}

	o := s.owner(ownerID)
	for _, c := range staged {
		o.customers[c.ID] = c
	}
	if len(staged) > 0 {
		s.notify(ownerID, domain.CollectionCustomers)
	}
	return staged, nil
}

// ============================================================
// Templates
// ============================================================

func (s *Store) ListTemplates(_ context.Context, ownerID string) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("templates.list", -1); err != nil {
		return nil, err
	}
	o := s.owner(ownerID)
	out := make([]domain.Template, 0, len(o.templates))
	for _, t := range o.templates {
		out = append(out, cloneTemplate(t))
	}
	newestFirst(out)
	return out, nil
}

func (s *Store) GetTemplate(_ context.Context, ownerID, id string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("templates.get", -1); err != nil {
		return nil, err
	}
	t, ok := s.owner(ownerID).templates[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "template", ID: id}
	}
	t = cloneTemplate(t)
	return &t, nil
}

func (s *Store) CreateTemplate(_ context.Context, ownerID string, in *domain.TemplateInput) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("templates.create", -1); err != nil {
		return nil, err
	}
	now := s.stamp()
	t := in.Entity(newID(), now)
	t.LastUsed = &now
	s.owner(ownerID).templates[t.ID] = t
	s.notify(ownerID, domain.CollectionTemplates)
	out := cloneTemplate(t)
	return &out, nil
}

func (s *Store) UpdateTemplate(_ context.Context, ownerID, id string, patch *domain.TemplatePatch) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("templates.update", -1); err != nil {
		return nil, err
	}
	o := s.owner(ownerID)
	t, ok := o.templates[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "template", ID: id}
	}
	t = patch.Apply(t)
	t.UpdatedAt = s.stamp()
	o.templates[id] = t
	s.notify(ownerID, domain.CollectionTemplates)
	out := cloneTemplate(t)
	return &out, nil
}

func (s *Store) DeleteTemplate(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("templates.delete", -1); err != nil {
		return err
	}
	delete(s.owner(ownerID).templates, id)
	s.notify(ownerID, domain.CollectionTemplates)
	return nil
}

func cloneTemplate(t domain.Template) domain.Template {
	t.Variables = append([]string(nil), t.Variables...)
	if t.LastUsed != nil {
		lu := *t.LastUsed
		t.LastUsed = &lu
	}
	return t
}

// ============================================================
// Payments
// ============================================================

func (s *Store) ListPayments(_ context.Context, ownerID string) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("payments.list", -1); err != nil {
		return nil, err
	}
	o := s.owner(ownerID)
	out := make([]domain.Payment, 0, len(o.payments))
	for _, p := range o.payments {
		out = append(out, p)
	}
	newestFirst(out)
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, ownerID string, in *domain.PaymentInput) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("payments.create", -1); err != nil {
		return nil, err
	}
	p := in.Entity(newID(), s.stamp())
	s.owner(ownerID).payments[p.ID] = p
	s.notify(ownerID, domain.CollectionPayments)
	return &p, nil
}

func (s *Store) UpdatePayment(_ context.Context, ownerID, id string, patch *domain.PaymentPatch) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("payments.update", -1); err != nil {
		return nil, err
	}
	o := s.owner(ownerID)
	p, ok := o.payments[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "payment", ID: id}
	}
	p = patch.Apply(p)
	p.UpdatedAt = s.stamp()
	o.payments[id] = p
	s.notify(ownerID, domain.CollectionPayments)
	return &p, nil
}

func (s *Store) DeletePayment(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("payments.delete", -1); err != nil {
		return err
	}
	delete(s.owner(ownerID).payments, id)
	s.notify(ownerID, domain.CollectionPayments)
	return nil
}

// ============================================================
// Settings
// ============================================================

func (s *Store) GetSettings(_ context.Context, ownerID string) (domain.Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("settings.get", -1); err != nil {
		return nil, false, err
	}
	o := s.owner(ownerID)
	if o.settings == nil {
		return nil, false, nil
	}
	return o.settings.Clone(), true, nil
}

func (s *Store) PutSettingsSection(_ context.Context, ownerID, name string, section domain.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("settings.put", -1); err != nil {
		return err
	}
	o := s.owner(ownerID)
	if o.settings == nil {
		o.settings = domain.Settings{}
	}
	o.settings[name] = section.Clone()
	return nil
}
