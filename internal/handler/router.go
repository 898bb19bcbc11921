package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/identity"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/service"
	"github.com/boddenberg/payping-sync-go/internal/subscription"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router the presentation layer talks to. Reads
// come from the local store snapshot; writes go through its orchestration
// methods.
func NewRouter(
	store *appdata.Store,
	gate *identity.Gate,
	onboarding *service.Onboarding,
	push *subscription.Manager,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.RequestLogger(logger, observability.RequestLog{
		Fields: requestFields(store, gate),
		Quiet:  []string{"/healthz", "/readyz", "/metrics", "/ping"},
		Slow:   time.Second,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, push))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(gate, logger))

		// Session
		r.Post("/session", signInHandler(gate, logger))
		r.Get("/session", getSessionHandler(gate))
		r.Delete("/session", signOutHandler(gate, logger))

		// Snapshot
		r.Get("/state", stateHandler(store))
		r.Get("/stream", streamHandler(store, logger))
		r.Post("/refresh", refreshHandler(store, logger))
		r.Delete("/error", clearErrorHandler(store))

		// Customers
		r.Get("/customers", listCustomersHandler(store))
		r.Post("/customers", createCustomerHandler(store, logger))
		r.Post("/customers/import", importCustomersHandler(store, logger))
		r.Patch("/customers/{id}", updateCustomerHandler(store, logger))
		r.Delete("/customers/{id}", deleteCustomerHandler(store, logger))
		r.Put("/customers/{id}/reminders", toggleRemindersHandler(store, logger))

		// Templates
		r.Get("/templates", listTemplatesHandler(store))
		r.Post("/templates", createTemplateHandler(store, logger))
		r.Patch("/templates/{id}", updateTemplateHandler(store, logger))
		r.Delete("/templates/{id}", deleteTemplateHandler(store, logger))
		r.Post("/templates/{id}/duplicate", duplicateTemplateHandler(store, logger))

		// Payments
		r.Get("/payments", listPaymentsHandler(store))
		r.Post("/payments", createPaymentHandler(store, logger))
		r.Patch("/payments/{id}", updatePaymentHandler(store, logger))
		r.Delete("/payments/{id}", deletePaymentHandler(store, logger))

		// Settings
		r.Get("/settings", getSettingsHandler(store))
		r.Patch("/settings/{section}", updateSettingsHandler(store, logger))
		r.Get("/subscription", getSubscriptionHandler(store, logger))
		r.Patch("/subscription", updateSubscriptionHandler(store, logger))

		// Backup
		r.Get("/export", exportHandler(store, logger))

		// Client flag
		r.Get("/onboarding", getOnboardingHandler(onboarding))
		r.Post("/onboarding", completeOnboardingHandler(onboarding, logger))

		r.Get("/metrics/sync", syncMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler(store *appdata.Store, push *subscription.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "payping-sync", Status: "healthy", LastChecked: now},
		}

		ready := false
		if store != nil {
			st := store.Snapshot()
			status := "healthy"
			switch {
			case st.Phase == appdata.PhaseLoading:
				status = "degraded"
			case st.Error != "":
				status = "degraded"
			}
			ready = st.Phase == appdata.PhaseReady
			services = append(services, domain.ServiceHealth{Name: "local-store", Status: status, LastChecked: now})
		}
		if push != nil && ready {
			status := "healthy"
			if len(push.Open()) < len(domain.Collections) {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{Name: "push-channels", Status: status, LastChecked: now})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// requestFields tags request logs with the principal and the epoch of the
// snapshot current when the response was written.
func requestFields(store *appdata.Store, gate *identity.Gate) func(*http.Request) []zap.Field {
	return func(*http.Request) []zap.Field {
		var fields []zap.Field
		if gate != nil {
			if id := gate.CurrentPrincipalID(); id != "" {
				fields = append(fields, zap.String("principal_id", id))
			}
		}
		if store != nil {
			fields = append(fields, zap.Uint64("epoch", store.Snapshot().Epoch))
		}
		return fields
	}
}

func syncMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSyncSnapshot())
	}
}
