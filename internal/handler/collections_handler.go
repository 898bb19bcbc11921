package handler

import (
	"net/http"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxImportBatch caps POST /v1/customers/import.
const maxImportBatch = 500

// ============================================================
// Customers
// ============================================================

func listCustomersHandler(store *appdata.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot().Customers)
	}
}

func createCustomerHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/customers")
		defer span.End()

		var in domain.CustomerInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := in.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := store.AddCustomer(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateCustomerHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/customers/{id}")
		defer span.End()
		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("customer.id", id))

		var patch domain.CustomerPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if cur, ok := store.Snapshot().Customer(id); ok {
			if err := patch.ValidateOn(cur); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		updated, err := store.UpdateCustomer(ctx, id, patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteCustomerHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/customers/{id}")
		defer span.End()

		if err := store.DeleteCustomer(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func toggleRemindersHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/customers/{id}/reminders")
		defer span.End()

		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}

		updated, err := store.ToggleCustomerReminders(ctx, chi.URLParam(r, "id"), *req.Enabled)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func importCustomersHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/customers/import")
		defer span.End()

		var batch []domain.CustomerInput
		if err := decodeJSON(r, &batch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(batch) > maxImportBatch {
			writeError(w, http.StatusBadRequest, "too many customers in one import")
			return
		}
		for i := range batch {
			if err := batch[i].Validate(); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}
		span.SetAttributes(attribute.Int("import.size", len(batch)))

		res, err := store.BulkImportCustomers(ctx, batch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// Templates
// ============================================================

func listTemplatesHandler(store *appdata.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot().Templates)
	}
}

func createTemplateHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/templates")
		defer span.End()

		var in domain.TemplateInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := in.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := store.AddTemplate(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateTemplateHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/templates/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("template.id", id))

		var patch domain.TemplatePatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if cur, ok := store.Snapshot().Template(id); ok {
			if err := patch.ValidateOn(cur); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		updated, err := store.UpdateTemplate(ctx, id, patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteTemplateHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/templates/{id}")
		defer span.End()

		if err := store.DeleteTemplate(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func duplicateTemplateHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/templates/{id}/duplicate")
		defer span.End()

		dup, err := store.DuplicateTemplate(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, dup)
	}
}

// ============================================================
// Payments
// ============================================================

func listPaymentsHandler(store *appdata.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot().Payments)
	}
}

func createPaymentHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments")
		defer span.End()

		var in domain.PaymentInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := in.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := store.AddPayment(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updatePaymentHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/payments/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("payment.id", id))

		var patch domain.PaymentPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if cur, ok := store.Snapshot().Payment(id); ok {
			if err := patch.ValidateOn(cur); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		updated, err := store.UpdatePayment(ctx, id, patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deletePaymentHandler(store *appdata.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/payments/{id}")
		defer span.End()

		if err := store.DeletePayment(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
