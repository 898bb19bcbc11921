package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Settings & subscription
// ============================================================

func getSettingsHandler(store *appdata.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot().Settings)
	}
}

func updateSettingsHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/settings/{section}")
		defer span.End()
		section := chi.URLParam(r, "section")
		span.SetAttributes(attribute.String("section", section))

		var partial domain.Section
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := store.UpdateSettings(ctx, section, partial)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func getSubscriptionHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/subscription")
		defer span.End()

		sub, err := store.GetSubscription(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func updateSubscriptionHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/subscription")
		defer span.End()

		var partial domain.Section
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sub, err := store.UpdateSubscription(ctx, partial)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// ============================================================
// Backup
// ============================================================

// exportHandler serves the backup as an indented JSON download.
func exportHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/export")
		defer span.End()

		snap, err := store.ExportData(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		body, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+domain.BackupFilename(time.Now())+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// ============================================================
// Onboarding flag
// ============================================================

type onboardingResponse struct {
	Complete bool `json:"complete"`
}

func getOnboardingHandler(onboarding *service.Onboarding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, onboardingResponse{Complete: onboarding.Complete()})
	}
}

func completeOnboardingHandler(onboarding *service.Onboarding, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := onboarding.MarkComplete(); err != nil {
			logger.Error("failed to persist onboarding flag", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to persist onboarding flag")
			return
		}
		writeJSON(w, http.StatusOK, onboardingResponse{Complete: true})
	}
}
