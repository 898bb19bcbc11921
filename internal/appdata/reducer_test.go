package appdata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func customer(id, name string, age time.Duration) domain.Customer {
	return domain.Customer{ID: id, Name: name, Status: domain.CustomerCurrent, CreatedAt: t0.Add(-age)}
}

func mustReduce(t *testing.T, s State, a Action) State {
	t.Helper()
	next, out := reduce(s, a, t0)
	require.Equal(t, applied, out, "action %s not applied", a.actionName())
	return next
}

func readyState(t *testing.T, customers ...domain.Customer) State {
	t.Helper()
	s := initialState(domain.DefaultSettings(t0), 0)
	s = mustReduce(t, s, PrincipalChanged{PrincipalID: "u1"})
	return mustReduce(t, s, InitialLoadSucceeded{
		Epoch:     s.Epoch,
		Customers: customers,
		Settings:  domain.DefaultSettings(t0),
	})
}

func TestReduce_Lifecycle(t *testing.T) {
	s := initialState(domain.DefaultSettings(t0), 0)
	assert.Equal(t, PhaseUninitialized, s.Phase)

	s = mustReduce(t, s, PrincipalChanged{PrincipalID: "u1"})
	assert.Equal(t, PhaseLoading, s.Phase)
	assert.True(t, s.Loading)
	assert.False(t, s.Initialized)
	assert.Equal(t, uint64(1), s.Epoch)

	s = mustReduce(t, s, InitialLoadSucceeded{Epoch: 1, Customers: []domain.Customer{customer("c1", "a", 0)}})
	assert.Equal(t, PhaseReady, s.Phase)
	assert.True(t, s.Initialized)
	assert.False(t, s.Loading)
	assert.Len(t, s.Customers, 1)

	s = mustReduce(t, s, PrincipalChanged{PrincipalID: ""})
	assert.Equal(t, PhaseUninitialized, s.Phase)
	assert.Empty(t, s.Customers)
	assert.Empty(t, s.PrincipalID)
	assert.Equal(t, uint64(2), s.Epoch)
	assert.Equal(t, "PayPing Solutions", s.Settings[domain.SectionCompany]["name"])
}

func TestReduce_SamePrincipalIgnored(t *testing.T) {
	s := readyState(t)
	_, out := reduce(s, PrincipalChanged{PrincipalID: "u1"}, t0)
	assert.Equal(t, ignored, out)
}

func TestReduce_Reload(t *testing.T) {
	s := readyState(t, customer("c1", "a", 0))

	s = mustReduce(t, s, ReloadStarted{})
	assert.Equal(t, PhaseLoading, s.Phase)
	assert.False(t, s.Initialized)
	assert.Len(t, s.Customers, 1, "collections are kept while reloading")

	_, out := reduce(initialState(nil, 0), ReloadStarted{}, t0)
	assert.Equal(t, ignored, out)
}

func TestReduce_MutationsOnlyWhenReady(t *testing.T) {
	s := initialState(domain.DefaultSettings(t0), 0)
	_, out := reduce(s, CustomerAdded{Epoch: 0, Customer: customer("c1", "a", 0)}, t0)
	assert.Equal(t, ignored, out)

	s = mustReduce(t, s, PrincipalChanged{PrincipalID: "u1"})
	_, out = reduce(s, CustomerAdded{Epoch: s.Epoch, Customer: customer("c1", "a", 0)}, t0)
	assert.Equal(t, ignored, out)
	_, out = reduce(s, CollectionReplaced{Epoch: s.Epoch, Collection: domain.CollectionCustomers}, t0)
	assert.Equal(t, ignored, out)
}

func TestReduce_StaleEpoch(t *testing.T) {
	s := readyState(t)
	_, out := reduce(s, CustomerAdded{Epoch: s.Epoch - 1, Customer: customer("c1", "a", 0)}, t0)
	assert.Equal(t, stale, out)

	_, out = reduce(s, OperationFailed{Epoch: s.Epoch + 1, Message: "boom"}, t0)
	assert.Equal(t, stale, out)
}

func TestReduce_IdempotentPush(t *testing.T) {
	s := readyState(t)
	push := CollectionReplaced{
		Epoch:      s.Epoch,
		Collection: domain.CollectionCustomers,
		Customers:  []domain.Customer{customer("c2", "b", 0), customer("c1", "a", time.Minute)},
	}

	once := mustReduce(t, s, push)
	twice := mustReduce(t, once, push)

	a, err := json.Marshal(once.Customers)
	require.NoError(t, err)
	b, err := json.Marshal(twice.Customers)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestReduce_PushReplacesOptimisticState(t *testing.T) {
	s := readyState(t, customer("c1", "a", time.Hour))
	s = mustReduce(t, s, CustomerAdded{Epoch: s.Epoch, Customer: customer("pending-x", "local", 0)})
	require.Len(t, s.Customers, 2)

	s = mustReduce(t, s, CollectionReplaced{
		Epoch:      s.Epoch,
		Collection: domain.CollectionCustomers,
		Customers:  []domain.Customer{customer("c9", "remote", 0)},
	})
	require.Len(t, s.Customers, 1)
	assert.Equal(t, "c9", s.Customers[0].ID)
}

func TestReduce_AddPrependsAndConfirmReplaces(t *testing.T) {
	s := readyState(t, customer("c1", "old", time.Hour))

	s = mustReduce(t, s, CustomerAdded{Epoch: s.Epoch, Customer: customer("pending-1", "Acme", 0)})
	require.Len(t, s.Customers, 2)
	assert.Equal(t, "pending-1", s.Customers[0].ID)

	s = mustReduce(t, s, CustomerConfirmed{
		Epoch:         s.Epoch,
		ProvisionalID: "pending-1",
		Customer:      customer("c2", "Acme", -time.Second),
	})
	require.Len(t, s.Customers, 2)
	assert.Equal(t, "c2", s.Customers[0].ID)
	assert.Equal(t, "c1", s.Customers[1].ID)
}

func TestReduce_OutOfOrderConfirmationsResorted(t *testing.T) {
	s := readyState(t)
	s = mustReduce(t, s, CustomerAdded{Epoch: s.Epoch, Customer: customer("pending-a", "a", 2*time.Second)})
	s = mustReduce(t, s, CustomerAdded{Epoch: s.Epoch, Customer: customer("pending-b", "b", time.Second)})

	// b's write was stamped first by the server but a's confirmation lands first.
	s = mustReduce(t, s, CustomerConfirmed{Epoch: s.Epoch, ProvisionalID: "pending-a", Customer: customer("ca", "a", 0)})
	s = mustReduce(t, s, CustomerConfirmed{Epoch: s.Epoch, ProvisionalID: "pending-b", Customer: customer("cb", "b", time.Millisecond)})

	require.Len(t, s.Customers, 2)
	assert.Equal(t, "ca", s.Customers[0].ID)
	assert.Equal(t, "cb", s.Customers[1].ID)
}

func TestReduce_ConfirmAfterPushKeepsOneCopy(t *testing.T) {
	s := readyState(t)
	s = mustReduce(t, s, CustomerAdded{Epoch: s.Epoch, Customer: customer("pending-1", "Acme", 0)})
	// The push already carries the server record while the provisional is still held.
	s = mustReduce(t, s, CollectionReplaced{
		Epoch:      s.Epoch,
		Collection: domain.CollectionCustomers,
		Customers:  []domain.Customer{customer("c1", "Acme", 0)},
	})
	s = mustReduce(t, s, CustomerConfirmed{Epoch: s.Epoch, ProvisionalID: "pending-1", Customer: customer("c1", "Acme", 0)})

	require.Len(t, s.Customers, 1)
	assert.Equal(t, "c1", s.Customers[0].ID)
}

func TestReduce_UpdateConfirmationForRemovedRecordDropped(t *testing.T) {
	s := readyState(t, customer("c1", "a", 0))
	s = mustReduce(t, s, CustomerRemoved{Epoch: s.Epoch, ID: "c1"})
	s = mustReduce(t, s, CustomerConfirmed{Epoch: s.Epoch, ProvisionalID: "c1", Customer: customer("c1", "a2", 0)})
	assert.Empty(t, s.Customers)
}

func TestReduce_PatchAndToggle(t *testing.T) {
	s := readyState(t, customer("c1", "a", 0), customer("c2", "b", time.Minute))

	name := "renamed"
	s = mustReduce(t, s, CustomerUpdated{Epoch: s.Epoch, ID: "c2", Patch: domain.CustomerPatch{Name: &name}})
	s = mustReduce(t, s, CustomerRemindersToggled{Epoch: s.Epoch, ID: "c1", Enabled: true})

	c1, _ := s.Customer("c1")
	c2, _ := s.Customer("c2")
	assert.True(t, c1.RemindersEnabled)
	assert.Equal(t, "a", c1.Name)
	assert.Equal(t, "renamed", c2.Name)
}

func TestReduce_DoesNotMutatePrevious(t *testing.T) {
	before := readyState(t, customer("c1", "a", 0))
	name := "changed"

	_ = mustReduce(t, before, CustomerUpdated{Epoch: before.Epoch, ID: "c1", Patch: domain.CustomerPatch{Name: &name}})
	_ = mustReduce(t, before, SettingsSectionUpdated{Epoch: before.Epoch, Section: domain.SectionCompany, Partial: domain.Section{"name": "X"}})

	assert.Equal(t, "a", before.Customers[0].Name)
	assert.Equal(t, "PayPing Solutions", before.Settings[domain.SectionCompany]["name"])
}

func TestReduce_SettingsSectionMerge(t *testing.T) {
	s := readyState(t)
	s = mustReduce(t, s, SettingsSectionUpdated{Epoch: s.Epoch, Section: domain.SectionCompany, Partial: domain.Section{"name": "Acme"}})

	assert.Equal(t, "Acme", s.Settings[domain.SectionCompany]["name"])
	assert.Equal(t, "admin@payping.com", s.Settings[domain.SectionCompany]["email"])

	_, out := reduce(s, SettingsSectionUpdated{Epoch: s.Epoch, Section: "unknown", Partial: domain.Section{"a": 1}}, t0)
	assert.Equal(t, ignored, out)
}

func TestReduce_SubscriptionLoadedReplacesSection(t *testing.T) {
	s := readyState(t)
	s = mustReduce(t, s, SubscriptionLoaded{Epoch: s.Epoch, Subscription: domain.Section{"plan": "pro"}})

	assert.Equal(t, domain.Section{"plan": "pro"}, s.Settings[domain.SectionSubscription])
	assert.Contains(t, s.Settings, domain.SectionCompany)
}

func TestReduce_FailureKeepsOptimisticAndClears(t *testing.T) {
	s := readyState(t)
	s = mustReduce(t, s, LoadingSet{Epoch: s.Epoch, Loading: true})
	s = mustReduce(t, s, CustomerAdded{Epoch: s.Epoch, Customer: customer("pending-1", "a", 0)})
	s = mustReduce(t, s, OperationFailed{Epoch: s.Epoch, Collection: domain.CollectionCustomers, Message: "write rejected"})

	assert.Len(t, s.Customers, 1)
	assert.Equal(t, "write rejected", s.Error)
	assert.Equal(t, "write rejected", s.CollectionErrors[domain.CollectionCustomers])
	assert.False(t, s.Loading)

	s = mustReduce(t, s, OperationFailed{Epoch: s.Epoch, Collection: domain.CollectionPayments, Message: "second"})
	assert.Equal(t, "second", s.Error, "last failure wins the store-wide slot")
	assert.Len(t, s.CollectionErrors, 2)

	s = mustReduce(t, s, ErrorCleared{})
	assert.Empty(t, s.Error)
	assert.Empty(t, s.CollectionErrors)

	_, out := reduce(s, ErrorCleared{}, t0)
	assert.Equal(t, ignored, out)
}

func TestPhaseText(t *testing.T) {
	b, err := json.Marshal(struct{ P Phase }{PhaseReady})
	require.NoError(t, err)
	assert.JSONEq(t, `{"P":"ready"}`, string(b))

	for _, want := range []Phase{PhaseUninitialized, PhaseLoading, PhaseReady} {
		b, err := json.Marshal(State{Phase: want})
		require.NoError(t, err)
		var got State
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, want, got.Phase)
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("finished")))
}
