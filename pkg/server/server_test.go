package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	domainRL "github.com/NeuralTrust/EdgeShield/pkg/domain/ratelimit"
	handlers "github.com/NeuralTrust/EdgeShield/pkg/handlers/http"
	"github.com/NeuralTrust/EdgeShield/pkg/handlers/http/response"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs/sink"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/ratelimit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
	"github.com/NeuralTrust/EdgeShield/pkg/middleware"
	"github.com/NeuralTrust/EdgeShield/pkg/policies"
	"github.com/NeuralTrust/EdgeShield/pkg/server/router"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type openLimiter struct{}

func (openLimiter) Admit(
	_ context.Context,
	_ domainRL.Key,
	limit int,
	_ time.Duration,
	_ domainRL.FailMode,
) (domainRL.Decision, error) {
	return domainRL.Decision{Admitted: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(time.Minute)}, nil
}

// countingLimiter admits up to limit requests per key.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) Admit(
	_ context.Context,
	key domainRL.Key,
	limit int,
	_ time.Duration,
	_ domainRL.FailMode,
) (domainRL.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key.String()]++
	n := l.counts[key.String()]
	remaining := limit - n
	if remaining < 0 {
		remaining = 0
	}
	return domainRL.Decision{
		Admitted:  n <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Minute),
	}, nil
}

type echoUpstream struct {
	lastURI string
}

func (e *echoUpstream) DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, _ time.Duration) error {
	e.lastURI = req.URI().String()
	resp.SetStatusCode(http.StatusOK)
	resp.Header.Set("X-Upstream", "orders")
	resp.SetBodyString(`{"ok":true}`)
	return nil
}

func newTestServer(t *testing.T) (*ShieldServer, *echoUpstream, *sink.MemorySink) {
	t.Helper()
	return newTestServerWith(t, openLimiter{}, nil)
}

func newTestServerWith(
	t *testing.T,
	limiter ratelimit.Limiter,
	configure func(cfg *config.Config),
) (*ShieldServer, *echoUpstream, *sink.MemorySink) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: 8080, BodyLimit: 1024 * 1024},
		RateLimit: config.RateLimitConfig{Limit: 100, Window: "1m", FailMode: "open"},
		BodyGuard: config.BodyGuardConfig{MaxBytes: 1024},
		Routes: []config.RouteConfig{{
			Name:       "orders",
			Path:       "/api/orders",
			Methods:    []string{http.MethodPost},
			Upstream:   "http://orders.internal:8080",
			AuditEvent: "order.created",
		}},
	}

	if configure != nil {
		configure(cfg)
	}

	memory := sink.NewMemorySink(logger, time.Hour, 100)
	auditSvc := auditlogs.NewService(
		auditlogs.NewSelector(logger, time.Second, memory),
		signature.NewEngine("secret"),
		logger,
		nil,
	)
	upstream := &echoUpstream{}

	ht := handlers.HandlerTransport{
		HealthHandler:      handlers.NewHealthHandler(),
		PingHandler:        handlers.NewPingHandler(),
		VersionHandler:     handlers.NewGetVersionHandler(logger),
		WebhookHandler:     handlers.NewWebhookHandler(handlers.WebhookHandlerDeps{Logger: logger, Audit: auditSvc}),
		AuditEventsHandler: handlers.NewAuditEventsHandler(logger, auditSvc),
		ForwardedHandlers: map[string]handlers.Handler{
			"orders": handlers.NewForwardedHandler(handlers.ForwardedHandlerDeps{
				Logger: logger,
				Client: upstream,
				Route:  cfg.Routes[0],
				Audit:  auditSvc,
			}),
		},
	}
	mt := &middleware.Transport{
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(logger),
		RequestIDMiddleware:    middleware.NewRequestIDMiddleware(logger),
		MetricsMiddleware:      middleware.NewMetricsMiddleware(logger),
	}
	manager := policies.NewManager(cfg, limiter, logger)

	srv, err := NewShieldServer(ShieldServerDI{
		Config:  cfg,
		Logger:  logger,
		Routers: []router.ServerRouter{router.NewShieldRouter(mt, ht, manager, cfg, logger)},
	})
	require.NoError(t, err)
	return srv, upstream, memory
}

func TestShieldServer_Liveness(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{router.HealthPath, router.PingPath} {
		resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestShieldServer_UnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body response.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.KindNotFound, body.Error)
}

func TestShieldServer_ProxyRouteAudited(t *testing.T) {
	srv, upstream, memory := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/42?expand=items", strings.NewReader(`{"sku":"A-1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "orders", resp.Header.Get("X-Upstream"))
	assert.Equal(t, "100", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "http://orders.internal:8080/api/orders/42?expand=items", upstream.lastURI)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	require.Equal(t, 1, memory.Len())
	for _, payload := range memory.Drain() {
		record, err := auditlogs.VerifyRecord(payload, "secret")
		require.NoError(t, err)
		assert.Equal(t, "order.created", record.Event.Type)
		assert.Equal(t, http.StatusOK, record.Event.Outcome)
	}
}

func TestShieldServer_ProxyRouteOversizedBody(t *testing.T) {
	srv, upstream, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(strings.Repeat("x", 2048)))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Empty(t, upstream.lastURI)
}

func TestShieldServer_ForwardedAddressTrust(t *testing.T) {
	tests := []struct {
		name        string
		trusted     []string
		wantLimited int
	}{
		{
			name:        "it should ignore the proxy header from an untrusted peer",
			wantLimited: 15,
		},
		{
			name:        "it should honour the proxy header from a trusted peer",
			trusted:     []string{"0.0.0.0/0"},
			wantLimited: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := &countingLimiter{counts: map[string]int{}}
			srv, _, _ := newTestServerWith(t, limiter, func(cfg *config.Config) {
				cfg.RateLimit.Limit = 5
				cfg.Server.ProxyHeader = "X-Real-IP"
				cfg.Server.TrustedProxies = tt.trusted
			})

			limited := 0
			for i := 1; i <= 20; i++ {
				req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"sku":"A-1"}`))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i))
				resp, err := srv.App().Test(req)
				require.NoError(t, err)
				if resp.StatusCode == http.StatusTooManyRequests {
					limited++
				}
			}
			assert.Equal(t, tt.wantLimited, limited)
		})
	}
}

func TestMetricsServer_Exposition(t *testing.T) {
	srv, _, _ := newTestServer(t)
	_, err := srv.App().Test(httptest.NewRequest(http.MethodGet, router.HealthPath, nil))
	require.NoError(t, err)

	metrics := NewMetricsServer(&config.Config{}, logrus.New())
	resp, err := metrics.App().Test(httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "edgeshield_requests_total")
}
