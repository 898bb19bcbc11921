// Package domain defines the business entities synchronized by PayPing.
// These models are independent of the remote store and represent the
// canonical data structures held by the local store and the gateway.
package domain

import (
	"time"
)

// Collection names one of the independently synchronized entity sets.
type Collection string

const (
	CollectionCustomers Collection = "customers"
	CollectionTemplates Collection = "templates"
	CollectionPayments  Collection = "payments"
)

// Collections lists every subscribable collection in a stable order.
var Collections = []Collection{CollectionCustomers, CollectionTemplates, CollectionPayments}

// Entity is implemented by every record kept in a collection.
type Entity interface {
	EntityID() string
	Created() time.Time
}

// ============================================================
// Session
// ============================================================

// Session is an authenticated principal together with its access token.
type Session struct {
	PrincipalID  string    `json:"principalId"`
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SignInRequest is the body of POST /v1/session.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
