package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var _ port.Authenticator = (*Authenticator)(nil)

// Authenticator signs in a fixed set of development users and issues
// HS256 access tokens the identity gate can verify with the same secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	users   map[string]devUser
	revoked map[string]struct{}
}

type devUser struct {
	id   string
	hash []byte
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// NewAuthenticator hashes every "email:password" entry with bcrypt. The
// principal id of a user is derived from its email, so it is stable
// across restarts.
func NewAuthenticator(secret string, ttl time.Duration, users []string) (*Authenticator, error) {
	a := &Authenticator{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		users:   make(map[string]devUser, len(users)),
		revoked: make(map[string]struct{}),
	}
	for _, entry := range users {
		email, password, ok := strings.Cut(entry, ":")
		if !ok || email == "" || password == "" {
			return nil, fmt.Errorf("invalid dev user entry %q: want email:password", entry)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", email, err)
		}
		email = strings.ToLower(email)
		a.users[email] = devUser{id: PrincipalIDFor(email), hash: hash}
	}
	return a, nil
}

// PrincipalIDFor returns the stable principal id of a development user.
func PrincipalIDFor(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("payping:"+strings.ToLower(email))).String()
}

func (a *Authenticator) SignIn(_ context.Context, email, password string) (*domain.Session, error) {
	a.mu.Lock()
	u, ok := a.users[strings.ToLower(email)]
	a.mu.Unlock()
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "invalid login credentials"}
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid login credentials"}
	}

	now := a.now()
	exp := now.Add(a.ttl)
	claims := accessClaims{
		Email: strings.ToLower(email),
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.id,
			Issuer:    "payping-memstore",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &domain.Session{
		PrincipalID:  u.id,
		Email:        claims.Email,
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    exp,
	}, nil
}

// SignOut revokes the access token. Unknown tokens are accepted.
func (a *Authenticator) SignOut(_ context.Context, accessToken string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if accessToken != "" {
		a.revoked[accessToken] = struct{}{}
	}
	return nil
}

// Revoked reports whether SignOut was called for the token.
func (a *Authenticator) Revoked(accessToken string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.revoked[accessToken]
	return ok
}
