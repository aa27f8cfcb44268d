package server

import (
	"context"
	"fmt"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/server/router"
	"github.com/sirupsen/logrus"
)

type (
	ShieldServerDI struct {
		Config  *config.Config
		Logger  *logrus.Logger
		Routers []router.ServerRouter
	}
	ShieldServer struct {
		*BaseServer
	}
)

func NewShieldServer(di ShieldServerDI) (*ShieldServer, error) {
	base, err := NewBaseServer(di.Config, di.Logger).WithRouters(di.Routers...)
	if err != nil {
		return nil, err
	}
	return &ShieldServer{BaseServer: base}, nil
}

func (s *ShieldServer) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.WithField("addr", addr).Info("starting shield server")
	return s.router.Listen(addr)
}

func (s *ShieldServer) Shutdown(ctx context.Context) error {
	return s.router.ShutdownWithContext(ctx)
}
