package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ubid-billing/internal/infra/logging"
	"ubid-billing/internal/usecase"
)

// Server exposes the billing API: plan catalog, per-user profile and
// plan-change operations, plus operator endpoints behind the admin key.
type Server struct {
	billing *usecase.BillingUseCase
	renewal *usecase.RenewalUseCase
	auth    *AuthManager
	apiKey  string
	health  func(ctx context.Context) error
	log     *zerolog.Logger
}

func NewServer(
	billing *usecase.BillingUseCase,
	renewal *usecase.RenewalUseCase,
	auth *AuthManager,
	apiKey string,
	health func(ctx context.Context) error,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "Web").Logger()
	return &Server{
		billing: billing,
		renewal: renewal,
		auth:    auth,
		apiKey:  apiKey,
		health:  health,
		log:     &l,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.handleListPlans)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Get("/profile", s.handleGetProfile)
			r.Get("/plan-changes", s.handleListChanges)
			r.Post("/plan-change/preview", s.handlePreviewChange)
			r.Post("/plan-change", s.handleCommitChange)
			r.Post("/cancel", s.handleCancel)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminKeyMiddleware)
			r.Post("/sessions", s.handleMintSession)
			r.Post("/renewals/run", s.handleRunRenewals)
			r.Get("/users", s.handleLookupUser)
		})
	})
	return r
}

// traceMiddleware stamps every request with a trace id and logs the outcome.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Request-Id", traceID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		logging.With(ctx, s.log).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.With(r.Context(), s.log).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panic")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware requires a valid session whose subject matches the {id}
// in the path. Admin sessions may act on any user.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID := chi.URLParam(r, "id")
		if !claims.Admin() && claims.UserID() != userID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		ctx := logging.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminKeyMiddleware gates operator routes with the static admin API key.
func (s *Server) adminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if bearerToken(r) != s.apiKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(hdr) > len(prefix) && hdr[:len(prefix)] == prefix {
		return hdr[len(prefix):]
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
