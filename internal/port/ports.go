// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the local store,
// the gateway and the subscription manager from concrete adapters.
package port

import (
	"context"

	"github.com/boddenberg/payping-sync-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	DeletePrefix(prefix string) int
}

// PrincipalSource exposes the current authenticated principal ("" when
// signed out) and notifies on change.
type PrincipalSource interface {
	CurrentPrincipalID() string
	OnChange(fn func(principalID string)) (unsubscribe func())
}

// Authenticator exchanges credentials for a session with the identity provider.
// Implemented by Supabase GoTrue and by the in-memory backend.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// FlagStore persists principal-independent client flags.
type FlagStore interface {
	Flag(key string) (bool, error)
	SetFlag(key string, value bool) error
}
