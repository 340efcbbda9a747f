package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouterOptions struct {
	Verifier TokenVerifier
	Limiter  CallerLimiter
	Recorder RequestRecorder
	Logger   *slog.Logger
}

// NewRouter registers the protocol routes. Every /api/v1 route requires a
// bearer token; the health check does not.
func NewRouter(h *APIHandler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger, opts.Recorder))

	r.Get("/api/health", h.HealthCheckHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware(opts.Verifier))
		if opts.Limiter != nil {
			r.Use(rateLimitMiddleware(opts.Limiter, opts.Recorder))
		}

		r.Post("/roles", h.GrantRoleHandler)
		r.Get("/roles/{account}", h.GetRolesHandler)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProductHandler)
			r.Get("/", h.ListProductsHandler)
			r.Get("/{id}", h.GetProductHandler)
			r.Post("/{id}/delivered", h.MarkProductDeliveredHandler)
			r.Post("/{id}/received", h.ConfirmProductReceivedHandler)
		})

		r.Route("/lcs", func(r chi.Router) {
			r.Post("/", h.OpenLCHandler)
			r.Get("/", h.ListLCsHandler)
			r.Get("/{id}", h.GetLCHandler)
			r.Post("/{id}/approve", h.ApproveLCHandler)
			r.Post("/{id}/ship", h.ConfirmShipmentHandler)
			r.Post("/{id}/delivered-pending", h.MarkDeliveredPendingHandler)
			r.Post("/{id}/confirm-delivery", h.ConfirmDeliveredHandler)
			r.Post("/{id}/dispute", h.RaiseDisputeHandler)
			r.Post("/{id}/resolve", h.ResolveDisputeHandler)
			r.Post("/{id}/release", h.ReleasePaymentHandler)
		})

		r.Route("/token", func(r chi.Router) {
			r.Post("/approve", h.ApproveTokenHandler)
			r.Post("/transfer", h.TransferTokenHandler)
			r.Post("/mint", h.MintTokenHandler)
			r.Get("/{account}", h.TokenAccountHandler)
		})

		r.Get("/events", h.ListEventsHandler)
	})

	return r
}
