package dependency_container_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/dependency_container"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// offlineConfig needs no reachable redis, database or object store.
func offlineConfig() *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{Host: "127.0.0.1", Port: 1},
		Cors: config.CorsConfig{
			AllowOrigins: []string{"https://app.example.com"},
			AllowMethods: []string{"GET", "POST"},
		},
		RateLimit: config.RateLimitConfig{
			Limit:              10,
			Window:             "1m",
			FailMode:           "open",
			StoreTimeout:       100 * time.Millisecond,
			BreakerTimeout:     time.Second,
			BreakerMaxFailures: 1,
		},
		BodyGuard: config.BodyGuardConfig{MaxBytes: 1024},
		Audit: config.AuditConfig{
			Enabled:         true,
			HMACSecret:      "container-secret",
			Primary:         auditlogs.SinkMemory,
			SinkTimeout:     time.Second,
			MemoryRetention: time.Hour,
		},
		Webhooks: config.WebhooksConfig{
			Providers: map[string]map[string]interface{}{
				"github": {"secret": "gh", "header": "X-Hub-Signature-256"},
			},
		},
		Routes: []config.RouteConfig{
			{Name: "billing", Path: "/v1/billing", Upstream: "http://127.0.0.1:1"},
		},
	}
}

func TestNewContainer_MemoryPrimary(t *testing.T) {
	c, err := dependency_container.NewContainer(context.Background(), dependency_container.ContainerDI{
		Cfg:    offlineConfig(),
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	assert.Contains(t, c.HandlerTransport.ForwardedHandlers, "billing")
	assert.NotNil(t, c.HandlerTransport.WebhookHandler)
	assert.NotNil(t, c.MiddlewareTransport.RequestIDMiddleware)

	receipt, err := c.AuditLogsService.Record(context.Background(), audit.EventParams{Type: "user.login"})
	require.NoError(t, err)
	assert.Equal(t, auditlogs.SinkMemory, receipt.SinkMode)
	assert.Equal(t, 1, c.MemorySink.Len())

	assert.NoError(t, c.Close())
	assert.Equal(t, 0, c.MemorySink.Len())
}

func TestNewContainer_AuditDisabled(t *testing.T) {
	cfg := offlineConfig()
	cfg.Audit.Enabled = false

	c, err := dependency_container.NewContainer(context.Background(), dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	defer c.Close()

	receipt, err := c.AuditLogsService.Record(context.Background(), audit.EventParams{Type: "user.login"})
	require.NoError(t, err)
	assert.Equal(t, auditlogs.SinkDisabled, receipt.SinkMode)
	assert.Empty(t, receipt.Signature)
}

func TestNewContainer_RejectsUnknownPolicy(t *testing.T) {
	cfg := offlineConfig()
	cfg.Routes[0].Policies = map[string]map[string]interface{}{"waf": {}}

	_, err := dependency_container.NewContainer(context.Background(), dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: quietLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "billing")
}

func TestNewContainer_RejectsUnknownSink(t *testing.T) {
	cfg := offlineConfig()
	cfg.Audit.Fallbacks = []string{"ftp"}

	_, err := dependency_container.NewContainer(context.Background(), dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: quietLogger(),
	})
	assert.ErrorContains(t, err, `unknown audit sink "ftp"`)
}

func TestNewContainer_RejectsBadWebhookScheme(t *testing.T) {
	cfg := offlineConfig()
	cfg.Webhooks.Providers["stripe"] = map[string]interface{}{"scheme": "rsa"}

	_, err := dependency_container.NewContainer(context.Background(), dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: quietLogger(),
	})
	assert.ErrorContains(t, err, "webhook provider stripe")
}
