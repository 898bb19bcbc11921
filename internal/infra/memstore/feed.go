package memstore

import (
	"context"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

// Watch registers a change signal for one collection of one owner. Signals
// coalesce: a watcher that has not drained its channel sees one pending
// signal no matter how many writes happened in between.
func (s *Store) Watch(ctx context.Context, ownerID string, collection domain.Collection) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("watch."+string(collection), -1); err != nil {
		return nil, err
	}

	ch := make(chan struct{}, 1)
	key := watchKey{owner: ownerID, collection: collection}
	set, ok := s.watchers[key]
	if !ok {
		set = make(map[chan struct{}]struct{})
		s.watchers[key] = set
	}
	set[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[key], ch)
		if len(s.watchers[key]) == 0 {
			delete(s.watchers, key)
		}
		close(ch)
	}()

	return ch, nil
}

// Watchers reports the number of live watchers for a collection.
func (s *Store) Watchers(ownerID string, collection domain.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[watchKey{owner: ownerID, collection: collection}])
}

// notify must be called with s.mu held.
func (s *Store) notify(ownerID string, collection domain.Collection) {
	for ch := range s.watchers[watchKey{owner: ownerID, collection: collection}] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
