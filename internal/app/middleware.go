package app

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/resource-planning/internal/observability"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Identity headers set by the upstream gateway.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the planner middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.MutationRateLimit > 0 {
			limit = cfg.Config.MutationRateLimit
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		MutationRateLimit(limit, time.Minute),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// MutationRateLimit throttles non-read requests per tenant and user.
func MutationRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	limiter := httprate.Limit(requests, window, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		return r.Header.Get(HeaderTenantID) + ":" + r.Header.Get(HeaderUserID), nil
	}))
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				limited.ServeHTTP(w, r)
			}
		})
	}
}

// Identity resolves the caller from gateway headers and stores it as the request actor.
// Requests without a complete identity are rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromHeaders(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func actorFromHeaders(r *http.Request) (shared.Actor, error) {
	tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	if tenantID == "" {
		return shared.Actor{}, shared.Unauthorized("missing " + HeaderTenantID)
	}
	userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(HeaderUserID)))
	if err != nil {
		return shared.Actor{}, shared.Unauthorized("missing or invalid " + HeaderUserID)
	}
	role, err := shared.ParseRole(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
	if err != nil {
		return shared.Actor{}, err
	}
	ip := r.RemoteAddr
	if host, _, splitErr := net.SplitHostPort(ip); splitErr == nil {
		ip = host
	}
	return shared.Actor{
		TenantID: tenantID,
		UserID:   userID,
		Email:    strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		Role:     role,
		IP:       ip,
	}, nil
}
