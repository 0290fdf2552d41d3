package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/service"
	"pharmaledger/backend/internal/store"
)

type API struct {
	service       *service.Service
	verifier      *TokenVerifier
	allowedOrigin string
	log           logrus.FieldLogger
}

func New(svc *service.Service, verifier *TokenVerifier, allowedOrigin string, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		verifier:      verifier,
		allowedOrigin: allowedOrigin,
		log:           logger,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(a.secureHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		a.writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Group(func(r chi.Router) {
			r.Use(a.requireRole("cashier", "admin"))
			r.Post("/sales", a.handleCreateSale)
			r.Get("/sales/{saleID}", a.handleGetSale)
			r.Get("/sales/{saleID}/returns", a.handleListReturns)
			r.Get("/batches", a.handleListBatches)
			r.Get("/batches/{batchID}", a.handleGetBatch)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireRole("admin"))
			r.Post("/sales/{saleID}/returns", a.handleCreateReturn)
			r.Post("/purchases", a.handleReceivePurchase)
			r.Post("/batches/{batchID}/adjustments", a.handleAdjustStock)
			r.Get("/batches/{batchID}/ledger", a.handleBatchLedger)
			r.Get("/batches/{batchID}/reconciliation", a.handleReconcileBatch)
			r.Put("/medicines/{medicineID}", a.handleSaveMedicine)
			r.Put("/vendors/{vendorID}", a.handleSaveVendor)
			r.Put("/customers/{customerID}", a.handleSaveCustomer)
			r.Get("/invoice-sequences/{fiscalYear}", a.handleInvoiceSequence)
			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.verifier.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		a.log.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
		}).Info("http request")
	})
}

// statusClientClosedRequest marks requests the client abandoned before
// the engine finished. Nothing was committed for them.
const statusClientClosedRequest = 499

// statusForError maps the store error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrOverReturn):
		return http.StatusConflict
	case errors.Is(err, store.ErrPriceViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrConcurrencyConflict), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError adds the structured fields of typed engine errors so
// clients can tell the user which batch or line failed.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= 500 && status != http.StatusServiceUnavailable {
		a.writeError(w, status, err)
		return
	}

	payload := map[string]any{"error": err.Error()}
	var stockErr *store.StockError
	var priceErr *store.PriceError
	var returnErr *store.ReturnError
	switch {
	case errors.As(err, &stockErr):
		payload["batch_id"] = stockErr.BatchID
		payload["requested"] = stockErr.Requested
		payload["available"] = stockErr.Available
	case errors.As(err, &priceErr):
		payload["batch_id"] = priceErr.BatchID
		payload["selling_price"] = priceErr.SellingPrice
		payload["mrp"] = priceErr.MRP
	case errors.As(err, &returnErr):
		payload["sale_item_id"] = returnErr.SaleItemID
		payload["requested"] = returnErr.Requested
		payload["returnable"] = returnErr.Returnable
	}
	if status == statusClientClosedRequest {
		a.log.WithError(err).Info("request canceled by client")
		payload["error"] = "request canceled"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
		payload["error"] = "store busy, retry the request"
	}
	writeJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		a.log.WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
