package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/handlers/http/response"
	"github.com/NeuralTrust/EdgeShield/pkg/server/router"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Server interface defines the common behavior for all servers
type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
}

type BaseServer struct {
	config *config.Config
	logger *logrus.Logger
	router *fiber.App
}

func NewBaseServer(cfg *config.Config, logger *logrus.Logger) *BaseServer {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 8 * 1024 * 1024
	}
	r := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ReduceMemoryUsage:       true,
		Network:                 fiber.NetworkTCP,
		BodyLimit:               bodyLimit,
		ReadTimeout:             60 * time.Second,
		WriteTimeout:            60 * time.Second,
		IdleTimeout:             120 * time.Second,
		Concurrency:             16384,
		StreamRequestBody:       true,
		ProxyHeader:             cfg.Server.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      true,
		ErrorHandler:            errorHandler(logger),
	})

	r.Server().MaxConnsPerIP = 1024
	r.Server().ReadBufferSize = 8192
	r.Server().WriteBufferSize = 8192
	r.Server().NoDefaultServerHeader = true

	return &BaseServer{
		config: cfg,
		logger: logger,
		router: r,
	}
}

func (s *BaseServer) WithRouters(routers ...router.ServerRouter) (*BaseServer, error) {
	for _, r := range routers {
		if err := r.BuildRoutes(s.router); err != nil {
			return nil, fmt.Errorf("failed to build routes: %w", err)
		}
	}
	return s, nil
}

// App exposes the underlying fiber app, mostly for tests.
func (s *BaseServer) App() *fiber.App {
	return s.router
}

// errorHandler renders errors that escaped every handler in the shared
// error shape.
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			switch fe.Code {
			case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
				return response.Kind(c, domain.KindNotFound)
			case fiber.StatusRequestEntityTooLarge:
				return response.Kind(c, domain.KindPayloadTooLarge)
			}
		}
		logger.WithFields(logrus.Fields{
			"path":   c.Path(),
			"method": c.Method(),
		}).WithError(err).Error("unhandled request error")
		return response.Error(c, err)
	}
}
