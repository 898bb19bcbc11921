// Package subscription opens and tears down the per-collection push
// channels. A channel delivers the whole ordered collection on attach and
// again after every remote change signal.
package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/infra/resilience"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"go.uber.org/zap"
)

// StateSource is the part of the local store the manager binds to.
type StateSource interface {
	Snapshot() appdata.State
	Subscribe(fn func(appdata.State)) (unsubscribe func())
	Dispatch(a appdata.Action) bool
}

// Manager owns every open push channel.
type Manager struct {
	feed       port.ChangeFeed
	gateway    port.Gateway
	principals port.PrincipalSource
	retry      resilience.Config
	metrics    *observability.Metrics
	logger     *zap.Logger

	mu    sync.Mutex
	bound *binding
}

// binding is the set of channels opened for one principal and epoch.
type binding struct {
	principalID string
	epoch       uint64
	channels    map[domain.Collection]func()
	attempt     int
}

func NewManager(
	feed port.ChangeFeed,
	gateway port.Gateway,
	principals port.PrincipalSource,
	retry resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Manager {
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = 500 * time.Millisecond
	}
	if retry.MaxBackoff <= 0 {
		retry.MaxBackoff = 30 * time.Second
	}
	retry.MaxRetries = -1
	return &Manager{
		feed:       feed,
		gateway:    gateway,
		principals: principals,
		retry:      retry,
		metrics:    metrics,
		logger:     logger,
	}
}

// ============================================================
// Direct subscriptions
// ============================================================

// SubscribeCustomers opens a customers channel for the current principal.
// After unsubscribe returns no new snapshot is delivered; onSnapshot may
// call unsubscribe itself.
func (m *Manager) SubscribeCustomers(onSnapshot func([]domain.Customer)) (unsubscribe func(), err error) {
	owner, err := m.owner("subscribe.customers")
	if err != nil {
		return nil, err
	}
	return open(m, owner, domain.CollectionCustomers, m.gateway.ListCustomers, onSnapshot)
}

func (m *Manager) SubscribeTemplates(onSnapshot func([]domain.Template)) (unsubscribe func(), err error) {
	owner, err := m.owner("subscribe.templates")
	if err != nil {
		return nil, err
	}
	return open(m, owner, domain.CollectionTemplates, m.gateway.ListTemplates, onSnapshot)
}

func (m *Manager) SubscribePayments(onSnapshot func([]domain.Payment)) (unsubscribe func(), err error) {
	owner, err := m.owner("subscribe.payments")
	if err != nil {
		return nil, err
	}
	return open(m, owner, domain.CollectionPayments, m.gateway.ListPayments, onSnapshot)
}

func (m *Manager) owner(op string) (string, error) {
	id := m.principals.CurrentPrincipalID()
	if id == "" {
		return "", &domain.ErrUnauthenticated{Operation: op}
	}
	return id, nil
}

// channel guards delivery against teardown. Once close has returned no new
// delivery starts. close never waits, so onSnapshot may call unsubscribe.
type channel struct {
	cancel context.CancelFunc
	closed atomic.Bool
}

func (c *channel) deliver(fn func()) bool {
	if c.closed.Load() {
		return false
	}
	fn()
	return true
}

func (c *channel) close() bool {
	c.cancel()
	return c.closed.CompareAndSwap(false, true)
}

// open watches coll for owner and pumps full snapshots into onSnapshot.
// Lists run tagged with owner, so the gateway refuses them while another
// principal is current, and snapshots are dropped if the principal moved
// away from owner before delivery.
func open[T any](
	m *Manager,
	owner string,
	coll domain.Collection,
	list func(context.Context) ([]T, error),
	onSnapshot func([]T),
) (func(), error) {
	ctx, cancel := context.WithCancel(domain.WithPrincipal(context.Background(), owner))
	signals, err := m.feed.Watch(ctx, owner, coll)
	if err != nil {
		cancel()
		return nil, err
	}
	ch := &channel{cancel: cancel}
	m.metrics.SubscriptionOpened(coll)
	log := m.logger.With(zap.String("collection", string(coll)), zap.String("principal_id", owner))
	log.Debug("push channel opened")

	refresh := func() {
		items, err := list(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("snapshot fetch failed", zap.Error(err))
			}
			return
		}
		ch.deliver(func() {
			if m.principals.CurrentPrincipalID() != owner {
				log.Debug("dropped snapshot for previous principal")
				return
			}
			m.metrics.IncrPush(coll)
			onSnapshot(items)
		})
	}

	go func() {
		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if ok {
					refresh()
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.Warn("push channel lost, re-watching")
				err := resilience.RetryWithBackoff(ctx, m.retry, func() error {
					s, err := m.feed.Watch(ctx, owner, coll)
					if err != nil {
						return err
					}
					signals = s
					return nil
				})
				if err != nil {
					return
				}
				refresh()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if ch.close() {
				m.metrics.SubscriptionClosed(coll)
				log.Debug("push channel closed")
			}
		})
	}, nil
}

// ============================================================
// Lifecycle binding
// ============================================================

// Bind keeps the channels in step with src: all three are open while a
// principal is present and the store is initialized, and are closed on any
// principal change or reload. Pushes carry the epoch they were opened
// under. The returned unbind closes every channel.
func (m *Manager) Bind(src StateSource) (unbind func()) {
	kick := make(chan struct{}, 1)
	stop := make(chan struct{})
	done := make(chan struct{})

	notify := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
	unsubscribe := src.Subscribe(func(appdata.State) { notify() })
	notify()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				m.reconcile(src, appdata.State{}, notify)
				return
			case <-kick:
				m.reconcile(src, src.Snapshot(), notify)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(stop)
			<-done
		})
	}
}

// reconcile runs only on the Bind goroutine.
func (m *Manager) reconcile(src StateSource, st appdata.State, retry func()) {
	want := st.PrincipalID != "" && st.Initialized

	m.mu.Lock()
	defer m.mu.Unlock()

	if b := m.bound; b != nil && (!want || b.principalID != st.PrincipalID || b.epoch != st.Epoch) {
		for _, unsubscribe := range b.channels {
			unsubscribe()
		}
		m.bound = nil
		m.logger.Info("push channels closed",
			zap.String("principal_id", b.principalID),
			zap.Uint64("epoch", b.epoch),
		)
	}
	if !want {
		return
	}
	if m.bound == nil {
		m.bound = &binding{
			principalID: st.PrincipalID,
			epoch:       st.Epoch,
			channels:    make(map[domain.Collection]func(), len(domain.Collections)),
		}
	}

	b := m.bound
	failed := false
	for _, coll := range domain.Collections {
		if _, ok := b.channels[coll]; ok {
			continue
		}
		unsubscribe, err := m.bindCollection(src, b, coll)
		if err != nil {
			failed = true
			m.logger.Warn("failed to open push channel",
				zap.String("collection", string(coll)),
				zap.Error(err),
			)
			continue
		}
		b.channels[coll] = unsubscribe
	}
	if failed {
		wait := m.retry.Backoff(b.attempt)
		b.attempt++
		time.AfterFunc(wait, retry)
		return
	}
	b.attempt = 0
}

func (m *Manager) bindCollection(src StateSource, b *binding, coll domain.Collection) (func(), error) {
	epoch := b.epoch
	switch coll {
	case domain.CollectionCustomers:
		return open(m, b.principalID, coll, m.gateway.ListCustomers, func(items []domain.Customer) {
			src.Dispatch(appdata.CollectionReplaced{Epoch: epoch, Collection: coll, Customers: items})
		})
	case domain.CollectionTemplates:
		return open(m, b.principalID, coll, m.gateway.ListTemplates, func(items []domain.Template) {
			src.Dispatch(appdata.CollectionReplaced{Epoch: epoch, Collection: coll, Templates: items})
		})
	default:
		return open(m, b.principalID, coll, m.gateway.ListPayments, func(items []domain.Payment) {
			src.Dispatch(appdata.CollectionReplaced{Epoch: epoch, Collection: coll, Payments: items})
		})
	}
}

// Open lists the collections with a bound channel.
func (m *Manager) Open() []domain.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound == nil {
		return nil
	}
	out := make([]domain.Collection, 0, len(m.bound.channels))
	for _, coll := range domain.Collections {
		if _, ok := m.bound.channels[coll]; ok {
			out = append(out, coll)
		}
	}
	return out
}
