package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "queue")
	t.Setenv("FORWARD_COMMITMENT_MONTHS", "6")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Minute, cfg.DashboardCacheTTL)
	require.Equal(t, notifications.ModeQueue, cfg.Notifications.Mode)
	require.Equal(t, 6, cfg.Planning.ForwardCommitmentMonths)
	require.False(t, cfg.IsProduction())

	pool := cfg.PoolOptions("worker")
	require.Equal(t, "worker", pool.ApplicationName)
	require.Equal(t, int32(10), pool.MaxConns)
}

func TestInTestMode(t *testing.T) {
	t.Setenv("PLANNER_TEST_MODE", "true")
	require.True(t, InTestMode())
	t.Setenv("PLANNER_TEST_MODE", "nope")
	require.False(t, InTestMode())
}

func TestLoadConfigRejectsUnknownNotifyMode(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "smtp")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{LogFormat: "json", AppEnv: "production"}).Info("hello")
	require.Contains(t, buf.String(), `"env":"production"`)
	require.Contains(t, buf.String(), `"msg":"hello"`)
}

func identityProbe(t *testing.T) (http.Handler, *shared.Actor) {
	t.Helper()
	var seen shared.Actor
	return Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		seen = actor
		w.WriteHeader(http.StatusNoContent)
	})), &seen
}

func TestIdentityFromHeaders(t *testing.T) {
	h, seen := identityProbe(t)
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTenantID, "t1")
	req.Header.Set(HeaderUserID, userID.String())
	req.Header.Set(HeaderUserRole, "Finance")
	req.Header.Set(HeaderUserEmail, "fin@example.com")
	req.RemoteAddr = "10.0.0.7:5123"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, shared.Actor{TenantID: "t1", UserID: userID, Email: "fin@example.com", Role: shared.RoleFinance, IP: "10.0.0.7"}, *seen)
}

func TestIdentityRejectsIncompleteHeaders(t *testing.T) {
	h, _ := identityProbe(t)
	cases := map[string]map[string]string{
		"no tenant":    {HeaderUserID: uuid.NewString(), HeaderUserRole: "PM"},
		"bad user":     {HeaderTenantID: "t1", HeaderUserID: "42", HeaderUserRole: "PM"},
		"unknown role": {HeaderTenantID: "t1", HeaderUserID: uuid.NewString(), HeaderUserRole: "Intern"},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			require.Equal(t, http.StatusForbidden, rr.Code)
		})
	}
}

func TestMutationRateLimitSkipsReads(t *testing.T) {
	h := MutationRateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func(method string) int {
		req := httptest.NewRequest(method, "/", nil)
		req.Header.Set(HeaderTenantID, "t1")
		req.Header.Set(HeaderUserID, "u1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, send(http.MethodPost))
	require.Equal(t, http.StatusTooManyRequests, send(http.MethodPost))
	require.Equal(t, http.StatusOK, send(http.MethodGet))
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRouterHealthAndIdentityGate(t *testing.T) {
	healthy := true
	router := NewRouter(RouterParams{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: &Config{},
		Ready: []Pinger{pingerFunc(func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		})},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	healthy = false
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(HeaderTenantID, "t1")
	req.Header.Set(HeaderUserID, uuid.NewString())
	req.Header.Set(HeaderUserRole, "RO")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"role":"RO"`)
}
