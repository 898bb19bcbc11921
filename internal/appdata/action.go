package appdata

import "github.com/boddenberg/payping-sync-go/internal/domain"

// Action is a state transition request. The set is closed: only the types
// declared in this file implement it.
type Action interface {
	actionName() string
}

// tagged is implemented by actions carrying the results of an async call.
// They only apply while their epoch is current.
type tagged interface {
	epochTag() uint64
}

// ============================================================
// Lifecycle
// ============================================================

// PrincipalChanged resets the store for a new principal ("" when signed out).
type PrincipalChanged struct {
	PrincipalID string
}

// ReloadStarted re-enters Loading for the current principal.
type ReloadStarted struct{}

type LoadingSet struct {
	Epoch   uint64
	Loading bool
}

// InitialLoadSucceeded carries the full parallel fetch.
type InitialLoadSucceeded struct {
	Epoch     uint64
	Customers []domain.Customer
	Templates []domain.Template
	Payments  []domain.Payment
	Settings  domain.Settings
}

// CollectionReplaced swaps one whole collection for a remote snapshot. Only
// the slice matching Collection is read.
type CollectionReplaced struct {
	Epoch      uint64
	Collection domain.Collection
	Customers  []domain.Customer
	Templates  []domain.Template
	Payments   []domain.Payment
}

type SettingsLoaded struct {
	Epoch    uint64
	Settings domain.Settings
}

// ============================================================
// Customers
// ============================================================

type CustomerAdded struct {
	Epoch    uint64
	Customer domain.Customer
}

// CustomerConfirmed replaces the entry with ProvisionalID (or the entry with
// the confirmed id) by the server record.
type CustomerConfirmed struct {
	Epoch         uint64
	ProvisionalID string
	Customer      domain.Customer
}

type CustomerUpdated struct {
	Epoch uint64
	ID    string
	Patch domain.CustomerPatch
}

type CustomerRemoved struct {
	Epoch uint64
	ID    string
}

type CustomerRemindersToggled struct {
	Epoch   uint64
	ID      string
	Enabled bool
}

// ============================================================
// Templates
// ============================================================

type TemplateAdded struct {
	Epoch    uint64
	Template domain.Template
}

type TemplateConfirmed struct {
	Epoch         uint64
	ProvisionalID string
	Template      domain.Template
}

type TemplateUpdated struct {
	Epoch uint64
	ID    string
	Patch domain.TemplatePatch
}

type TemplateRemoved struct {
	Epoch uint64
	ID    string
}

// ============================================================
// Payments
// ============================================================

type PaymentAdded struct {
	Epoch   uint64
	Payment domain.Payment
}

type PaymentConfirmed struct {
	Epoch         uint64
	ProvisionalID string
	Payment       domain.Payment
}

type PaymentUpdated struct {
	Epoch uint64
	ID    string
	Patch domain.PaymentPatch
}

type PaymentRemoved struct {
	Epoch uint64
	ID    string
}

// ============================================================
// Settings
// ============================================================

// SettingsSectionUpdated shallow-merges Partial into one section.
type SettingsSectionUpdated struct {
	Epoch   uint64
	Section string
	Partial domain.Section
}

// SubscriptionLoaded replaces the subscription section.
type SubscriptionLoaded struct {
	Epoch        uint64
	Subscription domain.Section
}

// ============================================================
// Errors
// ============================================================

// OperationFailed records a failed orchestration call. Optimistic changes
// already applied stay in place.
type OperationFailed struct {
	Epoch      uint64
	Collection domain.Collection
	Op         string
	Message    string
}

type ErrorCleared struct{}

func (PrincipalChanged) actionName() string         { return "principal_changed" }
func (ReloadStarted) actionName() string            { return "reload_started" }
func (LoadingSet) actionName() string               { return "loading_set" }
func (InitialLoadSucceeded) actionName() string     { return "initial_load_succeeded" }
func (CollectionReplaced) actionName() string       { return "collection_replaced" }
func (SettingsLoaded) actionName() string           { return "settings_loaded" }
func (CustomerAdded) actionName() string            { return "customer_added" }
func (CustomerConfirmed) actionName() string        { return "customer_confirmed" }
func (CustomerUpdated) actionName() string          { return "customer_updated" }
func (CustomerRemoved) actionName() string          { return "customer_removed" }
func (CustomerRemindersToggled) actionName() string { return "customer_reminders_toggled" }
func (TemplateAdded) actionName() string            { return "template_added" }
func (TemplateConfirmed) actionName() string        { return "template_confirmed" }
func (TemplateUpdated) actionName() string          { return "template_updated" }
func (TemplateRemoved) actionName() string          { return "template_removed" }
func (PaymentAdded) actionName() string             { return "payment_added" }
func (PaymentConfirmed) actionName() string         { return "payment_confirmed" }
func (PaymentUpdated) actionName() string           { return "payment_updated" }
func (PaymentRemoved) actionName() string           { return "payment_removed" }
func (SettingsSectionUpdated) actionName() string   { return "settings_section_updated" }
func (SubscriptionLoaded) actionName() string       { return "subscription_loaded" }
func (OperationFailed) actionName() string          { return "operation_failed" }
func (ErrorCleared) actionName() string             { return "error_cleared" }

func (a LoadingSet) epochTag() uint64               { return a.Epoch }
func (a InitialLoadSucceeded) epochTag() uint64     { return a.Epoch }
func (a CollectionReplaced) epochTag() uint64       { return a.Epoch }
func (a SettingsLoaded) epochTag() uint64           { return a.Epoch }
func (a CustomerAdded) epochTag() uint64            { return a.Epoch }
func (a CustomerConfirmed) epochTag() uint64        { return a.Epoch }
func (a CustomerUpdated) epochTag() uint64          { return a.Epoch }
func (a CustomerRemoved) epochTag() uint64          { return a.Epoch }
func (a CustomerRemindersToggled) epochTag() uint64 { return a.Epoch }
func (a TemplateAdded) epochTag() uint64            { return a.Epoch }
func (a TemplateConfirmed) epochTag() uint64        { return a.Epoch }
func (a TemplateUpdated) epochTag() uint64          { return a.Epoch }
func (a TemplateRemoved) epochTag() uint64          { return a.Epoch }
func (a PaymentAdded) epochTag() uint64             { return a.Epoch }
func (a PaymentConfirmed) epochTag() uint64         { return a.Epoch }
func (a PaymentUpdated) epochTag() uint64           { return a.Epoch }
func (a PaymentRemoved) epochTag() uint64           { return a.Epoch }
func (a SettingsSectionUpdated) epochTag() uint64   { return a.Epoch }
func (a SubscriptionLoaded) epochTag() uint64       { return a.Epoch }
func (a OperationFailed) epochTag() uint64          { return a.Epoch }
