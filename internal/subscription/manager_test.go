package subscription_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/cache"
	"github.com/boddenberg/payping-sync-go/internal/infra/memstore"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/infra/resilience"
	"github.com/boddenberg/payping-sync-go/internal/port"
	"github.com/boddenberg/payping-sync-go/internal/service"
	"github.com/boddenberg/payping-sync-go/internal/subscription"

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

// droppingFeed hands out one channel that closes right away before
// delegating to the wrapped feed.
type droppingFeed struct {
	port.ChangeFeed
	dropped atomic.Bool
}

func (f *droppingFeed) Watch(ctx context.Context, owner string, coll domain.Collection) (<-chan struct{}, error) {
	if f.dropped.CompareAndSwap(false, true) {
		ch := make(chan struct{})
		close(ch)
		return ch, nil
	}
	return f.ChangeFeed.Watch(ctx, owner, coll)
}

// flippingGateway makes the principal current again right after one list
// call, like a quick sign-out and sign-in while the list is in flight.
type flippingGateway struct {
	port.Gateway
	principal *fakePrincipal
	back      string
	armed     atomic.Bool
}

func (g *flippingGateway) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	out, err := g.Gateway.ListCustomers(ctx)
	if g.armed.CompareAndSwap(true, false) {
		g.principal.set(g.back)
	}
	return out, err
}

type fixture struct {
	remote    *memstore.Store
	principal *fakePrincipal
	metrics   *observability.Metrics
	gateway   *service.Gateway
	manager   *subscription.Manager
}

var fastRetry = resilience.Config{InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}

func newFixture(t *testing.T, principalID string, feed func(*memstore.Store) port.ChangeFeed) *fixture {
	t.Helper()
	remote := memstore.New()
	p := &fakePrincipal{id: principalID}
	c := cache.New[domain.Settings](time.Minute)
	t.Cleanup(c.Close)
	m := observability.NewMetrics()
	gw := service.NewGateway(remote, p, c, m, zap.NewNop())
	t.Cleanup(gw.Close)

	var f port.ChangeFeed = remote
	if feed != nil {
		f = feed(remote)
	}
	mgr := subscription.NewManager(f, gw, p, fastRetry, m, zap.NewNop())
	return &fixture{remote: remote, principal: p, metrics: m, gateway: gw, manager: mgr}
}

func collect[T any]() (func([]T), <-chan []T) {
	ch := make(chan []T, 16)
	return func(items []T) { ch <- items }, ch
}

func next[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case items := <-ch:
		return items
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

// --- Tests ---

func TestSubscribeCustomers_InitialSnapshotThenChanges(t *testing.T) {
	f := newFixture(t, "u1", nil)
	ctx := context.Background()
	_, err := f.remote.CreateCustomer(ctx, "u1", &domain.CustomerInput{Name: "first"})
	require.NoError(t, err)

	onSnapshot, snaps := collect[domain.Customer]()
	unsubscribe, err := f.manager.SubscribeCustomers(onSnapshot)
	require.NoError(t, err)
	defer unsubscribe()

	initial := next(t, snaps)
	require.Len(t, initial, 1)

	_, err = f.remote.CreateCustomer(ctx, "u1", &domain.CustomerInput{Name: "second"})
	require.NoError(t, err)

	got := next(t, snaps)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Name, "snapshots are newest first")
	assert.Equal(t, float64(1), f.metrics.ActiveSubscriptions(domain.CollectionCustomers))
}

func TestSubscribe_OtherOwnersChangesNotDelivered(t *testing.T) {
	f := newFixture(t, "u1", nil)

	onSnapshot, snaps := collect[domain.Payment]()
	unsubscribe, err := f.manager.SubscribePayments(onSnapshot)
	require.NoError(t, err)
	defer unsubscribe()
	next(t, snaps)

	_, err = f.remote.CreatePayment(context.Background(), "u2", &domain.PaymentInput{CustomerID: "c"})
	require.NoError(t, err)

	select {
	case <-snaps:
		t.Fatal("received a snapshot for another owner's write")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribe_NothingDeliveredAfterReturn(t *testing.T) {
	f := newFixture(t, "u1", nil)

	var delivered atomic.Int32
	var closed atomic.Bool
	unsubscribe, err := f.manager.SubscribeTemplates(func([]domain.Template) {
		if closed.Load() {
			t.Error("delivery after unsubscribe returned")
		}
		delivered.Add(1)
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return delivered.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	unsubscribe()
	closed.Store(true)
	unsubscribe()

	_, err = f.remote.CreateTemplate(context.Background(), "u1", &domain.TemplateInput{Type: domain.TemplateSMS, Name: "x"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.remote.Watchers("u1", domain.CollectionTemplates) == 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())
	assert.Equal(t, float64(0), f.metrics.ActiveSubscriptions(domain.CollectionTemplates))
}

func TestUnsubscribe_FromInsideOnSnapshot(t *testing.T) {
	f := newFixture(t, "u1", nil)

	handoff := make(chan func(), 1)
	done := make(chan struct{})
	unsubscribe, err := f.manager.SubscribeCustomers(func([]domain.Customer) {
		(<-handoff)()
		close(done)
	})
	require.NoError(t, err)
	handoff <- unsubscribe

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe called from onSnapshot did not return")
	}
	require.Eventually(t, func() bool {
		return f.remote.Watchers("u1", domain.CollectionCustomers) == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(0), f.metrics.ActiveSubscriptions(domain.CollectionCustomers))
}

func TestSubscribe_ListScopedToSubscriber(t *testing.T) {
	f := newFixture(t, "u1", nil)
	ctx := context.Background()
	_, err := f.remote.CreateCustomer(ctx, "u2", &domain.CustomerInput{Name: "other"})
	require.NoError(t, err)

	fg := &flippingGateway{Gateway: f.gateway, principal: f.principal, back: "u1"}
	mgr := subscription.NewManager(f.remote, fg, f.principal, fastRetry, f.metrics, zap.NewNop())

	onSnapshot, snaps := collect[domain.Customer]()
	unsubscribe, err := mgr.SubscribeCustomers(onSnapshot)
	require.NoError(t, err)
	defer unsubscribe()
	assert.Empty(t, next(t, snaps))

	f.principal.set("u2")
	fg.armed.Store(true)
	_, err = f.remote.CreateCustomer(ctx, "u1", &domain.CustomerInput{Name: "mine"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !fg.armed.Load() }, 2*time.Second, 5*time.Millisecond)
	_, err = f.remote.CreateCustomer(ctx, "u1", &domain.CustomerInput{Name: "mine too"})
	require.NoError(t, err)

	for {
		items := next(t, snaps)
		for _, c := range items {
			require.NotEqual(t, "other", c.Name, "delivered another principal's customers")
		}
		if len(items) == 2 {
			return
		}
	}
}

func TestSubscribe_Unauthenticated(t *testing.T) {
	f := newFixture(t, "", nil)

	_, err := f.manager.SubscribeCustomers(func([]domain.Customer) {})

	var unauth *domain.ErrUnauthenticated
	assert.True(t, errors.As(err, &unauth))
}

func TestSubscribe_WatchFailureReported(t *testing.T) {
	f := newFixture(t, "u1", nil)
	f.remote.SetFault(func(op string, _ int) error {
		if op == "watch.customers" {
			return errors.New("socket refused")
		}
		return nil
	})

	_, err := f.manager.SubscribeCustomers(func([]domain.Customer) {})
	assert.Error(t, err)
}

func TestSubscribe_LostChannelIsRewatched(t *testing.T) {
	f := newFixture(t, "u1", func(s *memstore.Store) port.ChangeFeed {
		return &droppingFeed{ChangeFeed: s}
	})

	onSnapshot, snaps := collect[domain.Customer]()
	unsubscribe, err := f.manager.SubscribeCustomers(onSnapshot)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		return f.remote.Watchers("u1", domain.CollectionCustomers) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.remote.CreateCustomer(context.Background(), "u1", &domain.CustomerInput{Name: "after"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case items := <-snaps:
				if len(items) == 1 {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 5*time.Millisecond)
}

// --- Binding ---

func newBoundStore(t *testing.T, f *fixture) *appdata.Store {
	t.Helper()
	store := appdata.New(f.gateway, f.principal, f.metrics, zap.NewNop())
	store.Start()
	t.Cleanup(store.Close)
	unbind := f.manager.Bind(store)
	t.Cleanup(unbind)
	return store
}

func (f *fixture) watchersOpen(owner string) bool {
	for _, coll := range domain.Collections {
		if f.remote.Watchers(owner, coll) != 1 {
			return false
		}
	}
	return true
}

func TestBind_OpensAfterInitialLoadAndFeedsStore(t *testing.T) {
	f := newFixture(t, "u1", nil)
	store := newBoundStore(t, f)

	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, appdata.PhaseReady, store.Snapshot().Phase)
	assert.ElementsMatch(t, domain.Collections, f.manager.Open())

	_, err := f.remote.CreateCustomer(context.Background(), "u1", &domain.CustomerInput{Name: "from another device"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(store.Snapshot().Customers) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Greater(t, f.metrics.GetSyncSnapshot().PushesDelivered, float64(0))
}

func TestBind_ClosesOnLogout(t *testing.T) {
	f := newFixture(t, "u1", nil)
	store := newBoundStore(t, f)
	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)

	f.principal.set("")

	require.Eventually(t, func() bool {
		for _, coll := range domain.Collections {
			if f.remote.Watchers("u1", coll) != 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.manager.Open())
	assert.Equal(t, appdata.PhaseUninitialized, store.Snapshot().Phase)

	// A write for the old principal must not reach the reset store.
	_, err := f.remote.CreateCustomer(context.Background(), "u1", &domain.CustomerInput{Name: "late"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, store.Snapshot().Customers)
}

func TestBind_SwitchPrincipalMovesChannels(t *testing.T) {
	f := newFixture(t, "u1", nil)
	newBoundStore(t, f)
	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)

	f.principal.set("u2")

	require.Eventually(t, func() bool {
		return f.watchersOpen("u2") && f.remote.Watchers("u1", domain.CollectionCustomers) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBind_ReloadReopensUnderNewEpoch(t *testing.T) {
	f := newFixture(t, "u1", nil)
	store := newBoundStore(t, f)
	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, store.Refresh(context.Background()))
	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)

	_, err := f.remote.CreatePayment(context.Background(), "u1", &domain.PaymentInput{CustomerID: "c"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(store.Snapshot().Payments) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBind_RetriesFailedOpen(t *testing.T) {
	f := newFixture(t, "u1", nil)
	var failures atomic.Int32
	f.remote.SetFault(func(op string, _ int) error {
		if op == "watch.payments" && failures.Add(1) <= 2 {
			return errors.New("socket refused")
		}
		return nil
	})
	newBoundStore(t, f)

	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, failures.Load(), int32(3))
}

func TestUnbind_ClosesEverything(t *testing.T) {
	f := newFixture(t, "u1", nil)
	store := appdata.New(f.gateway, f.principal, f.metrics, zap.NewNop())
	store.Start()
	defer store.Close()

	unbind := f.manager.Bind(store)
	require.Eventually(t, func() bool { return f.watchersOpen("u1") }, 2*time.Second, 5*time.Millisecond)

	unbind()
	assert.Empty(t, f.manager.Open())
	for _, coll := range domain.Collections {
		assert.Equal(t, float64(0), f.metrics.ActiveSubscriptions(coll))
	}
}
