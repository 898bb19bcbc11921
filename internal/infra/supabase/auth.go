package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"go.uber.org/zap"
)

var _ port.Authenticator = (*Auth)(nil)

// Auth signs principals in and out through Supabase GoTrue.
type Auth struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuth creates a GoTrue authenticator using the project's anon key.
func NewAuth(httpClient *http.Client, baseURL, apiKey string, logger *zap.Logger) *Auth {
	return &Auth{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, logger: logger, now: time.Now}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges email and password for a session (password grant).
func (a *Auth) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignIn")
	defer span.End()

	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/auth/v1/token?grant_type=password", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("supabase: sign-in request failed", zap.Error(err))
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, &domain.ErrUnauthorized{Message: "invalid login credentials"}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		a.logger.Warn("supabase: sign-in non-2xx", zap.Int("status", resp.StatusCode))
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: &statusError{Status: resp.StatusCode, Body: string(body)}}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("decode token: %w", err)}
	}
	if tr.User.ID == "" || tr.AccessToken == "" {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("token response without user")}
	}

	return &domain.Session{
		PrincipalID:  tr.User.ID,
		Email:        tr.User.Email,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// SignOut revokes the session server-side.
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	url := fmt.Sprintf("%s/auth/v1/logout", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", a.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}
	defer resp.Body.Close()

	// An already expired token cannot be revoked and is treated as signed out.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp)
		return &domain.ErrExternalService{Service: "supabase/auth", Err: &statusError{Status: resp.StatusCode, Body: string(body)}}
	}
	return nil
}
