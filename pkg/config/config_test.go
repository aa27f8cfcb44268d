package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0600))
	return dir
}

const baseConfig = `
audit:
  primary: memory
  fallbacks: []
`

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUDIT_HMAC_SECRET", "s3cret")
	dir := writeConfig(t, baseConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.StoreTimeout)
	assert.Equal(t, "open", cfg.RateLimit.FailMode)
	assert.Equal(t, int64(1024*1024), cfg.BodyGuard.MaxBytes)
	assert.Equal(t, 3*time.Second, cfg.Audit.SinkTimeout)
	assert.Equal(t, "audit/", cfg.Audit.ObjectPrefix)
	assert.Equal(t, "s3cret", cfg.Audit.HMACSecret)
}

func TestLoad_MissingSecretFailsFast(t *testing.T) {
	dir := writeConfig(t, baseConfig)

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "HMACSecret")
}

func TestLoad_Routes(t *testing.T) {
	t.Setenv("AUDIT_HMAC_SECRET", "s3cret")
	dir := writeConfig(t, baseConfig+`
routes:
  - name: webhooks
    policies:
      rate_limiter:
        limit: 10
        fail_mode: closed
  - name: orders
    path: /api/orders
    methods: [POST]
    upstream: http://orders.internal:8080
    audit_event: order.created
    policies:
      body_guard:
        max_bytes: 2048
        fields:
          - name: sku
            type: string
            required: true
            max_length: 32
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 2)

	webhooks, ok := cfg.Route(RouteWebhooks)
	require.True(t, ok)
	assert.True(t, webhooks.Builtin)
	assert.Equal(t, "closed", webhooks.Policies["rate_limiter"]["fail_mode"])

	proxies := cfg.ProxyRoutes()
	require.Len(t, proxies, 1)
	assert.Equal(t, "/api/orders", proxies[0].Path)
	assert.Equal(t, "order.created", proxies[0].AuditEvent)
	assert.NotNil(t, proxies[0].Policies["body_guard"]["fields"])
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Redis:     RedisConfig{Host: "localhost", Port: 6379},
			RateLimit: RateLimitConfig{StoreTimeout: time.Second, Limit: 5, Window: "1m", FailMode: "open"},
			BodyGuard: BodyGuardConfig{MaxBytes: 1024},
			Audit: AuditConfig{
				Enabled:     true,
				HMACSecret:  "secret",
				Primary:     "s3",
				Fallbacks:   []string{"memory"},
				SinkTimeout: time.Second,
				S3:          S3Config{Bucket: "audit-bucket"},
			},
		}
	}

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{name: "it should accept a valid config", mutate: func(c *Config) {}},
		{name: "it should require a bucket for the s3 primary", mutate: func(c *Config) { c.Audit.S3.Bucket = "" }, expectError: true},
		{name: "it should reject an unknown fail mode", mutate: func(c *Config) { c.RateLimit.FailMode = "maybe" }, expectError: true},
		{name: "it should reject an invalid window", mutate: func(c *Config) { c.RateLimit.Window = "soon" }, expectError: true},
		{name: "it should reject duplicate sinks", mutate: func(c *Config) { c.Audit.Fallbacks = []string{"memory", "memory"} }, expectError: true},
		{name: "it should accept trusted proxy cidrs", mutate: func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} }},
		{name: "it should reject a malformed trusted proxy", mutate: func(c *Config) { c.Server.TrustedProxies = []string{"proxy.local"} }, expectError: true},
		{name: "it should require kafka settings", mutate: func(c *Config) { c.Audit.Fallbacks = []string{"kafka"} }, expectError: true},
		{
			name: "it should require an upstream on proxy routes",
			mutate: func(c *Config) {
				c.Routes = []RouteConfig{{Name: "orders", Path: "/orders"}}
			},
			expectError: true,
		},
		{
			name: "it should not require a secret when audit is disabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.HMACSecret = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
