package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyCaller    ctxKey = "caller"
)

// TokenVerifier resolves a bearer token to the caller's account.
type TokenVerifier interface {
	VerifyToken(raw string) (string, error)
}

type CallerLimiter interface {
	Allow(key string, now time.Time) bool
}

type RequestRecorder interface {
	RecordRequest(method, route string, status int)
	RecordRateLimited()
}

// CallerFromContext returns the authenticated account of the request.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(ctxKeyCaller).(string)
	return caller, ok && caller != ""
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "Panic recovered",
						slog.String("request_id", requestIDFromContext(r.Context())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec))
					writeError(w, ErrorResponse{Error: "internal server error", Code: "INTERNAL"}, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.ResponseWriter.Write(payload)
}

func loggingMiddleware(logger *slog.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusCode
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if recorder != nil {
				recorder.RecordRequest(r.Method, route, status)
			}
			logger.InfoContext(r.Context(), "HTTP request",
				slog.String("request_id", requestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// authMiddleware requires a valid bearer token and stores its subject as the
// caller account.
func authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				writeError(w, ErrorResponse{Error: "missing bearer token", Code: "UNAUTHENTICATED"}, http.StatusUnauthorized)
				return
			}
			caller, err := verifier.VerifyToken(raw)
			if err != nil {
				writeError(w, ErrorResponse{Error: "invalid bearer token", Code: "UNAUTHENTICATED"}, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rateLimitMiddleware(limiter CallerLimiter, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, _ := CallerFromContext(r.Context())
			if !limiter.Allow(caller, time.Now()) {
				if recorder != nil {
					recorder.RecordRateLimited()
				}
				w.Header().Set("Retry-After", "1")
				writeError(w, ErrorResponse{Error: "rate limit exceeded", Code: "RATE_LIMITED"}, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
