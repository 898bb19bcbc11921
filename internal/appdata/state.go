// Package appdata holds the local store: a single reducer-driven snapshot of
// the signed-in principal's collections, settings and loading/error status.
// The presentation boundary only reads snapshots and calls the orchestration
// methods; every state change goes through Dispatch.
package appdata

import (
	"fmt"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

// Phase is the lifecycle stage of the store.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "uninitialized":
		*p = PhaseUninitialized
	case "loading":
		*p = PhaseLoading
	case "ready":
		*p = PhaseReady
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// State is an immutable snapshot. Slices and maps inside a published State
// are never written again; reducers build new ones.
type State struct {
	Customers []domain.Customer `json:"customers"`
	Templates []domain.Template `json:"templates"`
	Payments  []domain.Payment  `json:"payments"`
	Settings  domain.Settings   `json:"settings"`

	Loading     bool   `json:"loading"`
	Error       string `json:"error,omitempty"`
	Initialized bool   `json:"initialized"`

	Phase       Phase  `json:"phase"`
	PrincipalID string `json:"principalId,omitempty"`
	// Epoch changes on every principal change and every reload. Results of
	// calls issued under an older epoch are dropped.
	Epoch uint64 `json:"epoch"`
	// Version increments on every applied action.
	Version uint64 `json:"version"`
	// CollectionErrors keeps the last failure per collection. Settings
	// failures are keyed "settings".
	CollectionErrors map[domain.Collection]string `json:"collectionErrors,omitempty"`
}

// CollectionSettings keys settings failures in State.CollectionErrors.
const CollectionSettings domain.Collection = "settings"

func initialState(settings domain.Settings, epoch uint64) State {
	return State{
		Customers: []domain.Customer{},
		Templates: []domain.Template{},
		Payments:  []domain.Payment{},
		Settings:  settings,
		Phase:     PhaseUninitialized,
		Epoch:     epoch,
	}
}

// Customer returns the customer with id, if present.
func (s State) Customer(id string) (domain.Customer, bool) {
	return find(s.Customers, id)
}

func (s State) Template(id string) (domain.Template, bool) {
	return find(s.Templates, id)
}

func (s State) Payment(id string) (domain.Payment, bool) {
	return find(s.Payments, id)
}

func find[T domain.Entity](items []T, id string) (T, bool) {
	for _, it := range items {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}
