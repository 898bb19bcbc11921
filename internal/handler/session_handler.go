package handler

import (
	"net/http"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/identity"

	"go.uber.org/zap"
)

// ============================================================
// Session
// ============================================================

func signInHandler(gate *identity.Gate, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session")
		defer span.End()

		var req domain.SignInRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		sess, err := gate.SignIn(ctx, req.Email, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func getSessionHandler(gate *identity.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := gate.Session()
		if !ok {
			writeError(w, http.StatusUnauthorized, (&domain.ErrUnauthenticated{}).Error())
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func signOutHandler(gate *identity.Gate, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/session")
		defer span.End()

		// The local session is gone even if remote revocation fails.
		if err := gate.SignOut(ctx); err != nil {
			logger.Warn("sign-out revocation failed", zap.Error(err))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Snapshot
// ============================================================

func stateHandler(store *appdata.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot())
	}
}

func refreshHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/refresh")
		defer span.End()

		if err := store.Refresh(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, store.Snapshot())
	}
}

func clearErrorHandler(store *appdata.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.ClearError()
		w.WriteHeader(http.StatusNoContent)
	}
}
