package appdata

import (
	"sort"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

type outcome int

const (
	applied outcome = iota
	ignored
	stale
)

// reduce is pure: it never mutates s and never fails. Actions that do not
// fit the current phase are ignored; tagged actions from an older epoch are
// stale.
func reduce(s State, a Action, now time.Time) (State, outcome) {
	if t, ok := a.(tagged); ok && t.epochTag() != s.Epoch {
		return s, stale
	}

	switch a := a.(type) {
	case PrincipalChanged:
		if a.PrincipalID == s.PrincipalID {
			return s, ignored
		}
		next := initialState(domain.DefaultSettings(now), s.Epoch+1)
		next.PrincipalID = a.PrincipalID
		if a.PrincipalID != "" {
			next.Phase = PhaseLoading
			next.Loading = true
		}
		return next, applied

	case ReloadStarted:
		if s.PrincipalID == "" {
			return s, ignored
		}
		s.Epoch++
		s.Phase = PhaseLoading
		s.Loading = true
		s.Initialized = false
		return s, applied

	case LoadingSet:
		if s.Phase == PhaseUninitialized {
			return s, ignored
		}
		s.Loading = a.Loading
		return s, applied

	case InitialLoadSucceeded:
		if s.Phase != PhaseLoading {
			return s, ignored
		}
		s.Customers = sortedCopy(a.Customers)
		s.Templates = sortedCopy(a.Templates)
		s.Payments = sortedCopy(a.Payments)
		s.Settings = a.Settings.Clone()
		s.Phase = PhaseReady
		s.Initialized = true
		s.Loading = false
		return s, applied

	case CollectionReplaced:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		switch a.Collection {
		case domain.CollectionCustomers:
			s.Customers = sortedCopy(a.Customers)
		case domain.CollectionTemplates:
			s.Templates = sortedCopy(a.Templates)
		case domain.CollectionPayments:
			s.Payments = sortedCopy(a.Payments)
		default:
			return s, ignored
		}
		s.Loading = false
		return s, applied

	case SettingsLoaded:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Settings = a.Settings.Clone()
		s.Loading = false
		return s, applied

	case CustomerAdded:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Customers = prepend(s.Customers, a.Customer)
		return s, applied

	case CustomerConfirmed:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Customers = confirm(s.Customers, a.ProvisionalID, a.Customer)
		return s, applied

	case CustomerUpdated:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Customers = mapByID(s.Customers, a.ID, a.Patch.Apply)
		return s, applied

	case CustomerRemoved:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Customers = removeByID(s.Customers, a.ID)
		return s, applied

	case CustomerRemindersToggled:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Customers = mapByID(s.Customers, a.ID, func(c domain.Customer) domain.Customer {
			c.RemindersEnabled = a.Enabled
			return c
		})
		return s, applied

	case TemplateAdded:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Templates = prepend(s.Templates, a.Template)
		return s, applied

	case TemplateConfirmed:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Templates = confirm(s.Templates, a.ProvisionalID, a.Template)
		return s, applied

	case TemplateUpdated:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Templates = mapByID(s.Templates, a.ID, a.Patch.Apply)
		return s, applied

	case TemplateRemoved:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Templates = removeByID(s.Templates, a.ID)
		return s, applied

	case PaymentAdded:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Payments = prepend(s.Payments, a.Payment)
		return s, applied

	case PaymentConfirmed:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Payments = confirm(s.Payments, a.ProvisionalID, a.Payment)
		return s, applied

	case PaymentUpdated:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Payments = mapByID(s.Payments, a.ID, a.Patch.Apply)
		return s, applied

	case PaymentRemoved:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		s.Payments = removeByID(s.Payments, a.ID)
		return s, applied

	case SettingsSectionUpdated:
		if s.Phase != PhaseReady || !domain.IsSettingsSection(a.Section) {
			return s, ignored
		}
		s.Settings = s.Settings.WithSection(a.Section, a.Partial)
		return s, applied

	case SubscriptionLoaded:
		if s.Phase != PhaseReady {
			return s, ignored
		}
		next := make(domain.Settings, len(s.Settings)+1)
		for k, v := range s.Settings {
			next[k] = v
		}
		next[domain.SectionSubscription] = a.Subscription.Clone()
		s.Settings = next
		return s, applied

	case OperationFailed:
		if s.Phase == PhaseUninitialized {
			return s, ignored
		}
		s.Error = a.Message
		s.Loading = false
		errs := make(map[domain.Collection]string, len(s.CollectionErrors)+1)
		for k, v := range s.CollectionErrors {
			errs[k] = v
		}
		if a.Collection != "" {
			errs[a.Collection] = a.Message
		}
		s.CollectionErrors = errs
		return s, applied

	case ErrorCleared:
		if s.Error == "" && len(s.CollectionErrors) == 0 {
			return s, ignored
		}
		s.Error = ""
		s.CollectionErrors = nil
		return s, applied

	default:
		return s, ignored
	}
}

// ============================================================
// Collection helpers
// ============================================================

func sortNewestFirst[T domain.Entity](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Created().After(items[j].Created())
	})
}

func sortedCopy[T domain.Entity](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	sortNewestFirst(out)
	return out
}

func prepend[T domain.Entity](items []T, e T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, e)
	for _, it := range items {
		if it.EntityID() != e.EntityID() {
			out = append(out, it)
		}
	}
	return out
}

// confirm swaps the provisional entry (or an entry already carrying the
// server id) for e, keeping one copy. A create whose provisional entry is
// gone is appended; an update (provisionalID == e's id) is dropped, the
// record having been removed in between.
func confirm[T domain.Entity](items []T, provisionalID string, e T) []T {
	out := make([]T, 0, len(items)+1)
	placed := false
	for _, it := range items {
		id := it.EntityID()
		if id != provisionalID && id != e.EntityID() {
			out = append(out, it)
			continue
		}
		if !placed {
			out = append(out, e)
			placed = true
		}
	}
	if !placed {
		if provisionalID == e.EntityID() {
			return out
		}
		out = append(out, e)
	}
	sortNewestFirst(out)
	return out
}

func mapByID[T domain.Entity](items []T, id string, fn func(T) T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		if it.EntityID() == id {
			it = fn(it)
		}
		out[i] = it
	}
	return out
}

func removeByID[T domain.Entity](items []T, id string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.EntityID() != id {
			out = append(out, it)
		}
	}
	return out
}
