package dependency_container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	handlers "github.com/NeuralTrust/EdgeShield/pkg/handlers/http"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs/sink"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/breaker"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/cache"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/database"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/httpx"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/ratelimit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
	"github.com/NeuralTrust/EdgeShield/pkg/middleware"
	"github.com/NeuralTrust/EdgeShield/pkg/policies"
	"github.com/sirupsen/logrus"

	// registers the audit_records migration
	_ "github.com/NeuralTrust/EdgeShield/pkg/infra/migrations"
)

const (
	memorySinkMaxEntries = 10000
	s3BreakerTimeout     = 30 * time.Second
	s3BreakerMaxFailures = 5
)

type Container struct {
	Cache               cache.Client
	DB                  *database.DB
	Limiter             ratelimit.Limiter
	PolicyManager       *policies.Manager
	AuditLogsService    auditlogs.Service
	MemorySink          *sink.MemorySink
	HandlerTransport    handlers.HandlerTransport
	MiddlewareTransport *middleware.Transport

	logger *logrus.Logger
}

type ContainerDI struct {
	Cfg    *config.Config
	Logger *logrus.Logger
}

func NewContainer(ctx context.Context, di ContainerDI) (*Container, error) {
	cfg := di.Cfg
	c := &Container{logger: di.Logger}

	c.Cache = cache.NewClient(cache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
	}, di.Logger)

	storeBreaker := breaker.NewCircuitBreaker("ratelimit-store", cfg.RateLimit.BreakerTimeout, cfg.RateLimit.BreakerMaxFailures)
	c.Limiter = ratelimit.NewLimiter(
		cache.NewCounterStore(c.Cache.RedisClient(), storeBreaker),
		di.Logger,
		&ratelimit.Opts{StoreTimeout: cfg.RateLimit.StoreTimeout},
	)

	c.PolicyManager = policies.NewManager(cfg, c.Limiter, di.Logger)
	builtin := []config.RouteConfig{
		{Name: config.RouteVersion, Builtin: true},
		{Name: config.RouteWebhooks, Builtin: true},
		{Name: config.RouteAuditIngest, Builtin: true},
	}
	for i, r := range builtin {
		if configured, ok := cfg.Route(r.Name); ok {
			builtin[i] = configured
		}
	}
	if err := c.PolicyManager.Validate(append(builtin, cfg.ProxyRoutes()...)); err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid policy configuration: %w", err)
	}

	c.MemorySink = sink.NewMemorySink(di.Logger, cfg.Audit.MemoryRetention, memorySinkMaxEntries)
	if cfg.Audit.Enabled {
		svc, err := c.buildAuditService(ctx, cfg, di.Logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.AuditLogsService = svc
	} else {
		di.Logger.Warn("audit trail is disabled by configuration")
		c.AuditLogsService = auditlogs.NewDisabledService(di.Logger)
	}

	verifiers := make(map[string]*signature.WebhookVerifier, len(cfg.Webhooks.Providers))
	for name, settings := range cfg.Webhooks.Providers {
		v, err := signature.NewWebhookVerifier(settings)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("webhook provider %s: %w", name, err)
		}
		verifiers[name] = v
	}

	upstreamClient := httpx.NewUpstreamClient(httpx.UpstreamOptions{})
	forwarded := make(map[string]handlers.Handler)
	for _, route := range cfg.ProxyRoutes() {
		forwarded[route.Name] = handlers.NewForwardedHandler(handlers.ForwardedHandlerDeps{
			Logger: di.Logger,
			Client: upstreamClient,
			Route:  route,
			Audit:  c.AuditLogsService,
		})
	}

	c.HandlerTransport = handlers.HandlerTransport{
		HealthHandler:  handlers.NewHealthHandler(),
		PingHandler:    handlers.NewPingHandler(),
		VersionHandler: handlers.NewGetVersionHandler(di.Logger),
		WebhookHandler: handlers.NewWebhookHandler(handlers.WebhookHandlerDeps{
			Logger:    di.Logger,
			Verifiers: verifiers,
			Audit:     c.AuditLogsService,
		}),
		AuditEventsHandler: handlers.NewAuditEventsHandler(di.Logger, c.AuditLogsService),
		ForwardedHandlers:  forwarded,
	}

	c.MiddlewareTransport = &middleware.Transport{
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(di.Logger),
		RequestIDMiddleware:    middleware.NewRequestIDMiddleware(di.Logger),
		MetricsMiddleware:      middleware.NewMetricsMiddleware(di.Logger),
	}
	return c, nil
}

func (c *Container) buildAuditService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (auditlogs.Service, error) {
	primary, err := c.buildSink(ctx, cfg, logger, cfg.Audit.Primary)
	if err != nil {
		return nil, err
	}
	fallbacks := make([]audit.Sink, 0, len(cfg.Audit.Fallbacks))
	for _, name := range cfg.Audit.Fallbacks {
		s, err := c.buildSink(ctx, cfg, logger, name)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, s)
	}

	limits := audit.DefaultLimits()
	if cfg.Audit.MaxMetadataBytes > 0 {
		limits.MaxBytes = cfg.Audit.MaxMetadataBytes
	}

	logger.WithFields(logrus.Fields{
		"primary":   cfg.Audit.Primary,
		"fallbacks": cfg.Audit.Fallbacks,
	}).Info("audit trail configured")

	return auditlogs.NewService(
		auditlogs.NewSelector(logger, cfg.Audit.SinkTimeout, primary, fallbacks...),
		signature.NewEngine(cfg.Audit.HMACSecret),
		logger,
		&auditlogs.Opts{
			ObjectPrefix: cfg.Audit.ObjectPrefix,
			Limits:       limits,
		},
	), nil
}

func (c *Container) buildSink(ctx context.Context, cfg *config.Config, logger *logrus.Logger, name string) (audit.Sink, error) {
	switch name {
	case auditlogs.SinkS3:
		client, err := sink.NewS3Client(ctx, sink.S3ClientConfig{
			Region:       cfg.Audit.S3.Region,
			Endpoint:     cfg.Audit.S3.Endpoint,
			UsePathStyle: cfg.Audit.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 audit sink: %w", err)
		}
		cb := breaker.NewCircuitBreaker("audit-s3", s3BreakerTimeout, s3BreakerMaxFailures)
		return sink.NewS3Sink(client, cfg.Audit.S3.Bucket, cfg.Audit.S3.ServerSideEncryption, cb), nil

	case auditlogs.SinkPostgres:
		if c.DB == nil {
			db, err := database.NewDB(logger, &database.Config{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				DBName:   cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
			})
			if err != nil {
				return nil, fmt.Errorf("postgres audit sink: %w", err)
			}
			c.DB = db
		}
		return sink.NewPostgresSink(c.DB.DB), nil

	case auditlogs.SinkKafka:
		k, err := sink.NewKafkaSink(sink.KafkaConfig{
			Host:  cfg.Audit.Kafka.Host,
			Port:  cfg.Audit.Kafka.Port,
			Topic: cfg.Audit.Kafka.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		return k, nil

	case auditlogs.SinkMemory:
		return c.MemorySink, nil
	}
	return nil, fmt.Errorf("unknown audit sink %q", name)
}

// Close releases every connection the container opened. Records still held
// by the memory sink are reported by key so they can be matched against the
// warnings logged when they were written.
func (c *Container) Close() error {
	if c.MemorySink != nil {
		for key := range c.MemorySink.Drain() {
			c.logger.WithField("object_key", key).Warn("audit record only held in memory at shutdown")
		}
	}
	var errs []error
	if c.AuditLogsService != nil {
		errs = append(errs, c.AuditLogsService.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	return errors.Join(errs...)
}
