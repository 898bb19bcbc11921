// Package supabase provides the remote document store adapter for Supabase
// (PostgREST for data, GoTrue for sign-in). Every query is scoped to the
// owning principal through the user_id column.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/resilience"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

var _ port.DataStore = (*Client)(nil)

// Table names.
const (
	tableCustomers = "customers"
	tableTemplates = "templates"
	tablePayments  = "payments"
	tableSettings  = "settings"
)

const newestFirst = "created_at.desc,id.desc"

// Client wraps HTTP calls to the Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	bh             *resilience.Bulkhead
	logger         *zap.Logger
}

// NewClient creates a Supabase client. Calls run behind cb and bh and are
// never retried here.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, bh *resilience.Bulkhead, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		bh:             bh,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Body)
}

// call runs one request behind the breaker and bulkhead. Transport and
// status failures come back as *domain.ErrExternalService; an open breaker
// as *domain.ErrCircuitOpen.
func (c *Client) call(ctx context.Context, service string, fn func() ([]byte, error)) ([]byte, error) {
	body, err := resilience.Guard(ctx, c.cb, c.bh, "supabase", fn)
	if err == nil {
		return body, nil
	}
	var open *domain.ErrCircuitOpen
	if errors.As(err, &open) {
		return nil, err
	}
	return nil, &domain.ErrExternalService{Service: "supabase/" + service, Err: err}
}

// ownerQuery builds a PostgREST query string filtered by owner.
func ownerQuery(table, ownerID string, extra url.Values) string {
	q := url.Values{}
	q.Set("user_id", "eq."+ownerID)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return table + "?" + q.Encode()
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}
