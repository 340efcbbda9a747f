package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/processor"
	"lc_escrow/internal/repository"
	"lc_escrow/internal/token"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type APIHandler struct {
	roles          *processor.RoleRegistry
	products       *processor.ProductLedger
	engine         *processor.LetterOfCreditEngine
	ledger         *token.Ledger
	journal        repository.EventJournal
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	roles *processor.RoleRegistry,
	products *processor.ProductLedger,
	engine *processor.LetterOfCreditEngine,
	ledger *token.Ledger,
	journal repository.EventJournal,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		roles:          roles,
		products:       products,
		engine:         engine,
		ledger:         ledger,
		journal:        journal,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Details  string `json:"details,omitempty"`
	Field    string `json:"field,omitempty"`
	Current  string `json:"current,omitempty"`
	Required string `json:"required,omitempty"`
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

type EventsResponse struct {
	Events []domain.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// ListEventsHandler pages through the journal: ?after=<sequence>&limit=<n>.
// Next is the cursor to pass as after on the following call.
func (h *APIHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.sendError(w, "Event journal is not configured", http.StatusServiceUnavailable, "UNAVAILABLE")
		return
	}
	after, err := parseUintQuery(r, "after")
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_INPUT")
		return
	}
	limit, err := parseUintQuery(r, "limit")
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_INPUT")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	events, err := h.journal.ListAfter(ctx, after, int(min(limit, 1000)))
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Sequence
	}
	h.sendJSON(w, EventsResponse{Events: events, Next: next}, http.StatusOK)
}

func (h *APIHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		h.sendError(w, "missing caller identity", http.StatusUnauthorized, "UNAUTHENTICATED")
	}
	return caller, ok
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return false
	}
	return true
}

func (h *APIHandler) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.sendError(w, fmt.Sprintf("invalid id %q", raw), http.StatusBadRequest, "INVALID_INPUT")
		return 0, false
	}
	return id, true
}

func parseUintQuery(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", domain.ErrInvalidInput, raw)
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyReleased):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDeadlineExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendDomainError maps a protocol error to its status code and exposes the
// offending field so clients can react without re-reading state.
func (h *APIHandler) sendDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: domain.Code(err)}

	var perr *domain.ProtocolError
	if errors.As(err, &perr) {
		resp.Error = perr.Err.Error()
		resp.Details = perr.Op
		resp.Field = perr.Field
		resp.Current = perr.Current
		resp.Required = perr.Required
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed",
			slog.String("request_id", requestIDFromContext(r.Context())),
			slog.String("error", err.Error()))
		resp = ErrorResponse{Error: "internal server error", Code: "INTERNAL"}
	}

	writeError(w, resp, status)
	h.logger.Warn("API error response",
		slog.String("message", resp.Error),
		slog.String("code", resp.Code),
		slog.Int("status", status))
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	writeError(w, ErrorResponse{Error: message, Code: code}, statusCode)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func writeError(w http.ResponseWriter, resp ErrorResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
