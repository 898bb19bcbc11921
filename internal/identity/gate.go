// Package identity holds the authenticated principal of this client and
// notifies listeners when it changes. It is the only source of the owner
// id used to scope remote reads and writes.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var _ port.PrincipalSource = (*Gate)(nil)

// Claims are the access token claims the gate reads. Subject is the principal.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type listener struct {
	id uint64
	fn func(string)
}

// Gate tracks at most one session. Listeners are invoked outside the state
// lock, in registration order, one change at a time; they may read the gate
// but must not sign in or out from inside the callback.
type Gate struct {
	auth   port.Authenticator
	secret []byte
	logger *zap.Logger
	now    func() time.Time

	notifyMu sync.Mutex

	mu        sync.Mutex
	session   *domain.Session
	expiry    *time.Timer
	listeners []listener
	nextID    uint64
}

// NewGate creates a signed-out gate. With an empty secret, tokens returned
// by the authenticator are trusted as-is and SetSession is unavailable.
func NewGate(auth port.Authenticator, jwtSecret string, logger *zap.Logger) *Gate {
	return &Gate{
		auth:   auth,
		secret: []byte(jwtSecret),
		logger: logger,
		now:    time.Now,
	}
}

// CurrentPrincipalID returns the signed-in principal, or "".
func (g *Gate) CurrentPrincipalID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return ""
	}
	return g.session.PrincipalID
}

// Session returns a copy of the active session.
func (g *Gate) Session() (domain.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return domain.Session{}, false
	}
	return *g.session, true
}

// OnChange registers fn for principal transitions. It is not called for the
// current value.
func (g *Gate) OnChange(fn func(principalID string)) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := g.nextID
	g.listeners = append(g.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for i, l := range g.listeners {
				if l.id == id {
					g.listeners = append(g.listeners[:i:i], g.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// AccessToken returns the current session's access token, or "".
func (g *Gate) AccessToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return ""
	}
	return g.session.AccessToken
}

// SignIn authenticates with the identity provider and installs the session.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	sess, err := g.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if len(g.secret) > 0 {
		claims, err := g.validate(sess.AccessToken)
		if err != nil {
			return nil, err
		}
		if claims.Subject != sess.PrincipalID {
			return nil, &domain.ErrUnauthorized{Message: "token subject does not match principal"}
		}
		sess.ExpiresAt = claims.ExpiresAt.Time
	}

	g.install(sess)
	g.logger.Info("principal signed in", zap.String("principal_id", sess.PrincipalID))
	out := *sess
	return &out, nil
}

// SetSession installs a session from an already issued access token.
func (g *Gate) SetSession(accessToken string) (*domain.Session, error) {
	if len(g.secret) == 0 {
		return nil, &domain.ErrUnauthorized{Message: "token verification is not configured"}
	}
	claims, err := g.validate(accessToken)
	if err != nil {
		return nil, err
	}
	sess := &domain.Session{
		PrincipalID: claims.Subject,
		Email:       claims.Email,
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	g.install(sess)
	out := *sess
	return &out, nil
}

// SignOut clears the local session first, then revokes it remotely. The
// principal is gone even when revocation fails.
func (g *Gate) SignOut(ctx context.Context) error {
	g.notifyMu.Lock()
	g.mu.Lock()
	prev := g.session
	g.session = nil
	g.stopExpiryLocked()
	changed, fns := g.changedLocked(prev, nil)
	g.mu.Unlock()
	g.fire(changed, "", fns)
	g.notifyMu.Unlock()

	if prev == nil {
		return nil
	}
	g.logger.Info("principal signed out", zap.String("principal_id", prev.PrincipalID))
	if err := g.auth.SignOut(ctx, prev.AccessToken); err != nil {
		g.logger.Warn("remote sign-out failed", zap.Error(err))
		return err
	}
	return nil
}

// Close stops the expiry timer.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopExpiryLocked()
}

func (g *Gate) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(g.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

func (g *Gate) install(sess *domain.Session) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	prev := g.session
	cp := *sess
	g.session = &cp
	g.stopExpiryLocked()
	if !cp.ExpiresAt.IsZero() {
		token := cp.AccessToken
		g.expiry = time.AfterFunc(cp.ExpiresAt.Sub(g.now()), func() { g.expire(token) })
	}
	changed, fns := g.changedLocked(prev, &cp)
	g.mu.Unlock()

	g.fire(changed, cp.PrincipalID, fns)
}

// expire drops the session if token is still the active one.
func (g *Gate) expire(token string) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if g.session == nil || g.session.AccessToken != token {
		g.mu.Unlock()
		return
	}
	prev := g.session
	g.session = nil
	g.expiry = nil
	changed, fns := g.changedLocked(prev, nil)
	g.mu.Unlock()

	g.logger.Info("session expired", zap.String("principal_id", prev.PrincipalID))
	g.fire(changed, "", fns)
}

func (g *Gate) stopExpiryLocked() {
	if g.expiry != nil {
		g.expiry.Stop()
		g.expiry = nil
	}
}

func (g *Gate) changedLocked(prev, next *domain.Session) (bool, []func(string)) {
	prevID, nextID := "", ""
	if prev != nil {
		prevID = prev.PrincipalID
	}
	if next != nil {
		nextID = next.PrincipalID
	}
	if prevID == nextID {
		return false, nil
	}
	fns := make([]func(string), 0, len(g.listeners))
	for _, l := range g.listeners {
		fns = append(fns, l.fn)
	}
	return true, fns
}

func (g *Gate) fire(changed bool, principalID string, fns []func(string)) {
	if !changed {
		return
	}
	for _, fn := range fns {
		fn(principalID)
	}
}
