package policies

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	domainRL "github.com/NeuralTrust/EdgeShield/pkg/domain/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct{}

func (stubLimiter) Admit(
	_ context.Context,
	_ domainRL.Key,
	limit int,
	_ time.Duration,
	_ domainRL.FailMode,
) (domainRL.Decision, error) {
	return domainRL.Decision{Admitted: true, Limit: limit, Remaining: limit}, nil
}

func newManager() *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		Cors: config.CorsConfig{
			AllowOrigins: []string{"https://app.example.com"},
			AllowMethods: []string{"GET", "POST"},
		},
		RateLimit: config.RateLimitConfig{Limit: 100, Window: "1m", FailMode: "open"},
		BodyGuard: config.BodyGuardConfig{MaxBytes: 1024},
	}
	return NewManager(cfg, stubLimiter{}, logger)
}

func TestManager_BuildChainOrder(t *testing.T) {
	chain, err := newManager().BuildChain(config.RouteConfig{Name: "orders", Path: "/orders"})
	require.NoError(t, err)

	var names []string
	for _, p := range chain {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"cors", "rate_limiter", "body_guard"}, names)
}

func TestManager_UnknownPolicy(t *testing.T) {
	_, err := newManager().BuildChain(config.RouteConfig{
		Name:     "orders",
		Policies: map[string]map[string]interface{}{"jwt": {"secret": "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown policy "jwt"`)
}

func TestManager_InvalidOverrideFailsFast(t *testing.T) {
	err := newManager().Validate([]config.RouteConfig{
		{Name: "webhooks"},
		{Name: "orders", Policies: map[string]map[string]interface{}{
			"rate_limiter": {"window": "whenever"},
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route orders")
}

func TestManager_SettingsMerge(t *testing.T) {
	m := newManager()

	t.Run("route overrides win over globals", func(t *testing.T) {
		s, err := m.settings("rate_limiter", config.RouteConfig{
			Name:     "webhooks",
			Policies: map[string]map[string]interface{}{"rate_limiter": {"limit": 5}},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, s["limit"])
		assert.Equal(t, "1m", s["window"])
		assert.Equal(t, "open", s["fail_mode"])
	})

	t.Run("audit ingest fails closed by default", func(t *testing.T) {
		s, err := m.settings("rate_limiter", config.RouteConfig{Name: config.RouteAuditIngest})
		require.NoError(t, err)
		assert.Equal(t, "closed", s["fail_mode"])
	})

	t.Run("audit ingest is schema guarded", func(t *testing.T) {
		s, err := m.settings("body_guard", config.RouteConfig{Name: config.RouteAuditIngest})
		require.NoError(t, err)
		assert.Equal(t, int64(1024), s["max_bytes"])
		assert.Equal(t, true, s["strict"])
		assert.Len(t, s["fields"], 5)
	})

	t.Run("cors globals carry over", func(t *testing.T) {
		s, err := m.settings("cors", config.RouteConfig{Name: "orders"})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://app.example.com"}, s["allowed_origins"])
	})
}

func TestManager_AuditIngestChainBuilds(t *testing.T) {
	chain, err := newManager().BuildChain(config.RouteConfig{Name: config.RouteAuditIngest, Builtin: true})
	require.NoError(t, err)
	assert.Len(t, chain, len(Order))
}
