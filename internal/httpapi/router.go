package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handler serves the auth and admin routes.
type Handler struct {
	engine    *campusauth.Engine
	adminRole string
	logger    *zap.Logger
}

func NewHandler(engine *campusauth.Engine, adminRole string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, adminRole: adminRole, logger: logger}
}

// RouterOptions tunes NewRouter.
type RouterOptions struct {
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	// TrustProxy takes the client address from True-Client-IP, X-Real-IP or
	// X-Forwarded-For. Enable it only behind a proxy that overwrites them.
	TrustProxy bool
}

// NewRouter mounts every route.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(h.logRequests)
	r.Use(clientIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signin", h.signin)
		r.Post("/logout", h.logout)

		r.With(middleware.RequireMFAVerification(h.engine)).Post("/mfa/validate", h.mfaValidate)

		r.Route("/forgot-password", func(r chi.Router) {
			r.Post("/request-mfa", h.resetRequest)
			r.Post("/verify-mfa", h.resetVerify)
			r.Post("/reset", h.resetComplete)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(h.engine, campusauth.RouteStandard))
			r.Post("/mfa/setup", h.mfaSetup)
			r.Post("/mfa/verify", h.mfaVerify)
			r.Post("/mfa/disable", h.mfaDisable)
			r.Post("/mfa/backup-codes", h.backupCodes)
			r.Post("/change-password", h.changePassword)
			r.Get("/status/me", h.ownStatus)
		})
	})

	r.Route("/api/admin/accounts/{id}", func(r chi.Router) {
		r.Use(middleware.Guard(h.engine, campusauth.RouteStandard))
		r.Use(middleware.RequireRole(h.adminRole))
		r.Get("/status", h.accountStatus)
		r.Post("/block", h.blockAccount)
		r.Post("/unblock", h.unblockAccount)
		r.Post("/extend", h.extendAccount)
		r.Post("/reduce", h.reduceAccount)
		r.Post("/expire", h.expireAccount)
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := campusauth.WithClientIP(r.Context(), readIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// readIP uses the connection address only. Forwarding headers reach it
// through RemoteAddr when RouterOptions.TrustProxy installs chi's RealIP.
func readIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
