package appdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store owns the snapshot. Dispatch is serialized; Snapshot never blocks.
type Store struct {
	gateway    port.Gateway
	principals port.PrincipalSource
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	// LoadTimeout bounds the initial parallel fetch. Zero means no limit.
	LoadTimeout time.Duration

	mu    sync.Mutex
	state atomic.Pointer[State]

	listenMu  sync.Mutex
	listeners map[uint64]*listener
	nextID    uint64

	unwatch func()
	loads   sync.WaitGroup
}

// New creates a store in the Uninitialized phase. Call Start to bind it to
// the principal source.
func New(gateway port.Gateway, principals port.PrincipalSource, metrics *observability.Metrics, logger *zap.Logger) *Store {
	s := &Store{
		gateway:    gateway,
		principals: principals,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		listeners:  make(map[uint64]*listener),
	}
	st := initialState(domain.DefaultSettings(s.now()), 0)
	s.state.Store(&st)
	return s
}

// Snapshot returns the current state. The value must not be modified.
func (s *Store) Snapshot() State {
	return *s.state.Load()
}

// Dispatch reduces a into the state and reports whether it was applied.
func (s *Store) Dispatch(a Action) bool {
	_, ok := s.apply(a)
	return ok
}

func (s *Store) apply(a Action) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	next, out := reduce(*cur, a, s.now())
	s.metrics.IncrAction(a.actionName())

	switch out {
	case stale:
		s.metrics.IncrStaleDropped(a.actionName())
		s.logger.Debug("dropped stale result",
			zap.String("action", a.actionName()),
			zap.Uint64("epoch", cur.Epoch),
		)
		return *cur, false
	case ignored:
		return *cur, false
	}

	next.Version = cur.Version + 1
	s.state.Store(&next)

	s.listenMu.Lock()
	ls := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.listenMu.Unlock()
	for _, l := range ls {
		if !l.removed.Load() {
			l.fn(next)
		}
	}
	return next, true
}

type listener struct {
	fn      func(State)
	removed atomic.Bool
}

// Subscribe registers fn for every applied change. fn runs with dispatch
// locked: it must return quickly and must not call Dispatch. It may call
// the returned unsubscribe, which never blocks.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	l := &listener{fn: fn}
	s.listenMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenMu.Unlock()

	return func() {
		if l.removed.Swap(true) {
			return
		}
		s.listenMu.Lock()
		delete(s.listeners, id)
		s.listenMu.Unlock()
	}
}

// Start binds the store to the principal source and loads data for the
// current principal, if any.
func (s *Store) Start() {
	s.unwatch = s.principals.OnChange(s.principalChanged)
	s.principalChanged(s.principals.CurrentPrincipalID())
}

// Close detaches from the principal source and waits for in-flight loads.
func (s *Store) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.loads.Wait()
}

func (s *Store) principalChanged(principalID string) {
	st, ok := s.apply(PrincipalChanged{PrincipalID: principalID})
	if !ok || principalID == "" {
		if ok {
			s.logger.Info("store reset", zap.Uint64("epoch", st.Epoch))
		}
		return
	}
	s.logger.Info("loading data for principal",
		zap.String("principal_id", principalID),
		zap.Uint64("epoch", st.Epoch),
	)

	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		ctx := context.Background()
		if s.LoadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.LoadTimeout)
			defer cancel()
		}
		_ = s.loadAll(ctx, principalID, st.Epoch)
	}()
}

type loadError struct {
	collection domain.Collection
	err        error
}

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// loadAll fetches the three collections and the settings of principalID in
// parallel and applies them as one action tagged with epoch.
func (s *Store) loadAll(ctx context.Context, principalID string, epoch uint64) error {
	ctx = domain.WithPrincipal(ctx, principalID)
	var (
		customers []domain.Customer
		templates []domain.Template
		payments  []domain.Payment
		settings  domain.Settings
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if customers, err = s.gateway.ListCustomers(egCtx); err != nil {
			return &loadError{domain.CollectionCustomers, err}
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if templates, err = s.gateway.ListTemplates(egCtx); err != nil {
			return &loadError{domain.CollectionTemplates, err}
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if payments, err = s.gateway.ListPayments(egCtx); err != nil {
			return &loadError{domain.CollectionPayments, err}
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if settings, err = s.gateway.ReadSettings(egCtx); err != nil {
			return &loadError{CollectionSettings, err}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		var le *loadError
		coll := domain.Collection("")
		if errors.As(err, &le) {
			coll = le.collection
			err = le.err
		}
		return s.fail(epoch, coll, "load", err)
	}

	s.Dispatch(InitialLoadSucceeded{
		Epoch:     epoch,
		Customers: customers,
		Templates: templates,
		Payments:  payments,
		Settings:  settings,
	})
	return nil
}

// fail records err in the error slots and returns it unchanged.
func (s *Store) fail(epoch uint64, coll domain.Collection, op string, err error) error {
	s.logger.Warn("operation failed",
		zap.String("op", op),
		zap.String("collection", string(coll)),
		zap.Error(err),
	)
	s.Dispatch(OperationFailed{Epoch: epoch, Collection: coll, Op: op, Message: err.Error()})
	return err
}
