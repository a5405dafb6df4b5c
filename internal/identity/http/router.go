package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/service"
	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/pkg/httpx"
	"github.com/openshelf-dev/identity/pkg/jwtx"
	"github.com/openshelf-dev/identity/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store               store.Store
	AuthService         *service.AuthService
	UserService         *service.UserService
	SecondFactorService *service.SecondFactorService
}

func NewRouter(codec *jwtx.Codec, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSecondFactor()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		UserService: r.UserService,
	}

	// Credential endpoints get the strict profile, keyed by IP.
	r.Mux.Handle("POST /v1/auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSecondFactor() {
	auth := &AuthHandler{
		AuthService: r.AuthService,
		UserService: r.UserService,
	}
	h := &SecondFactorHandler{
		SecondFactorService: r.SecondFactorService,
		UserService:         r.UserService,
	}

	// The challenge step authenticates with a pending token in the body,
	// not a bearer header, so it skips AuthnMiddleware. Strict limit by
	// IP; failed codes are also budgeted per principal in the service.
	r.Mux.Handle("POST /v1/second-factor/verify",
		httpx.Chain(http.HandlerFunc(auth.HandleCompleteSecondFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/second-factor/enroll/initiate",
		httpx.Chain(http.HandlerFunc(h.HandleEnrollInitiate),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/second-factor/enroll/complete",
		httpx.Chain(http.HandlerFunc(h.HandleEnrollComplete),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/second-factor/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/second-factor/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/second-factor/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByPrincipal(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{UserService: r.UserService}

	r.Mux.Handle("GET /v1/admin/principals/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGetPrincipal),
			httpx.AuthnMiddleware(r.codec),
			RequireRole(domain.RoleAdmin),
			httpx.RateLimitByPrincipal(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/admin/principals/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleDeactivatePrincipal),
			httpx.AuthnMiddleware(r.codec),
			RequireRole(domain.RoleSuperAdmin),
			httpx.RateLimitByPrincipal(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.codec.Signer()),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
