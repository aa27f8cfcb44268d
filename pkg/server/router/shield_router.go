package router

import (
	"errors"
	"fmt"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	handlers "github.com/NeuralTrust/EdgeShield/pkg/handlers/http"
	"github.com/NeuralTrust/EdgeShield/pkg/middleware"
	"github.com/NeuralTrust/EdgeShield/pkg/policies"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	HealthPath      = "/health"
	PingPath        = "/__/ping"
	VersionPath     = "/v1/version"
	WebhooksPath    = "/v1/webhooks/:provider"
	AuditEventsPath = "/v1/audit/events"
)

var (
	ErrInvalidHandlerTransport = errors.New("invalid handler transport")
	allMethods                 = []string{
		fiber.MethodGet, fiber.MethodPost, fiber.MethodPut,
		fiber.MethodPatch, fiber.MethodDelete, fiber.MethodHead,
	}
)

type shieldRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    handlers.HandlerTransport
	manager             *policies.Manager
	config              *config.Config
	logger              *logrus.Logger
}

func NewShieldRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport handlers.HandlerTransport,
	manager *policies.Manager,
	cfg *config.Config,
	logger *logrus.Logger,
) ServerRouter {
	return &shieldRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
		manager:             manager,
		config:              cfg,
		logger:              logger,
	}
}

func (r *shieldRouter) BuildRoutes(router *fiber.App) error {
	ht := r.handlerTransport
	if ht.HealthHandler == nil || ht.PingHandler == nil || ht.WebhookHandler == nil || ht.AuditEventsHandler == nil || ht.VersionHandler == nil {
		return ErrInvalidHandlerTransport
	}

	mt := r.middlewareTransport
	router.Use(
		mt.PanicRecoverMiddleware.Middleware(),
		mt.RequestIDMiddleware.Middleware(),
		mt.MetricsMiddleware.Middleware(),
	)

	router.Get(HealthPath, ht.HealthHandler.Handle)
	router.Get(PingPath, ht.PingHandler.Handle)
	router.Post(PingPath, ht.PingHandler.Handle)

	if err := r.shield(router, config.RouteVersion, []string{fiber.MethodGet}, ht.VersionHandler, VersionPath); err != nil {
		return err
	}
	if err := r.shield(router, config.RouteWebhooks, []string{fiber.MethodPost}, ht.WebhookHandler, WebhooksPath); err != nil {
		return err
	}
	if err := r.shield(router, config.RouteAuditIngest, []string{fiber.MethodPost}, ht.AuditEventsHandler, AuditEventsPath); err != nil {
		return err
	}

	for _, route := range r.config.ProxyRoutes() {
		h, ok := ht.ForwardedHandlers[route.Name]
		if !ok {
			return fmt.Errorf("route %s: no forwarding handler", route.Name)
		}
		methods := route.Methods
		if len(methods) == 0 {
			methods = allMethods
		}
		if err := r.shield(router, route.Name, methods, h, route.Path, route.Path+"/*"); err != nil {
			return err
		}
	}
	return nil
}

// shield registers h behind the route's policy chain. OPTIONS is always
// registered so preflights reach the CORS policy.
func (r *shieldRouter) shield(router fiber.Router, name string, methods []string, h handlers.Handler, paths ...string) error {
	route, ok := r.config.Route(name)
	if !ok {
		route = config.RouteConfig{Name: name, Builtin: true}
	}
	chain, err := r.manager.BuildChain(route)
	if err != nil {
		return err
	}
	handler := middleware.Compose(r.logger, name, chain...)(h.Handle)

	for _, path := range paths {
		for _, method := range methods {
			router.Add(method, path, handler)
		}
		router.Add(fiber.MethodOptions, path, handler)
	}
	r.logger.WithFields(logrus.Fields{
		"route":   name,
		"paths":   paths,
		"methods": methods,
	}).Debug("route shielded")
	return nil
}
