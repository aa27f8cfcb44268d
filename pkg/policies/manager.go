package policies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/ratelimit"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/body_guard"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/cors"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/rate_limiter"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

type Manager struct {
	cfg     *config.Config
	limiter ratelimit.Limiter
	logger  *logrus.Logger
}

func NewManager(cfg *config.Config, limiter ratelimit.Limiter, logger *logrus.Logger) *Manager {
	return &Manager{cfg: cfg, limiter: limiter, logger: logger}
}

// BuildChain returns the policies guarding route in evaluation order. Each
// policy's settings are the global section, then built-in defaults for the
// route, then the route's own overrides, merged key by key.
func (m *Manager) BuildChain(route config.RouteConfig) ([]Policy, error) {
	for name := range route.Policies {
		if !known(name) {
			return nil, fmt.Errorf("route %s: unknown policy %q (expected one of %s)",
				route.Name, name, strings.Join(Order, ", "))
		}
	}

	chain := make([]Policy, 0, len(Order))
	for _, name := range Order {
		settings, err := m.settings(name, route)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route.Name, err)
		}

		var p Policy
		switch name {
		case cors.PolicyName:
			p, err = cors.New(m.logger, settings)
		case rate_limiter.PolicyName:
			p, err = rate_limiter.New(m.limiter, m.logger, route.Name, settings, nil)
		case body_guard.PolicyName:
			p, err = body_guard.New(m.logger, settings)
		}
		if err != nil {
			return nil, fmt.Errorf("route %s: policy %s: %w", route.Name, name, err)
		}
		chain = append(chain, p)
	}
	return chain, nil
}

// Validate builds every configured route's chain once so bad settings stop
// startup instead of failing requests.
func (m *Manager) Validate(routes []config.RouteConfig) error {
	for _, r := range routes {
		if _, err := m.BuildChain(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) settings(name string, route config.RouteConfig) (map[string]interface{}, error) {
	var global interface{}
	switch name {
	case cors.PolicyName:
		global = m.cfg.Cors
	case rate_limiter.PolicyName:
		global = m.cfg.RateLimit
	case body_guard.PolicyName:
		global = m.cfg.BodyGuard
	}

	merged := map[string]interface{}{}
	if err := mapstructure.Decode(global, &merged); err != nil {
		return nil, fmt.Errorf("policy %s: decode global settings: %w", name, err)
	}
	for k, v := range builtinDefaults[route.Name][name] {
		merged[k] = v
	}
	for k, v := range route.Policies[name] {
		merged[k] = v
	}
	return merged, nil
}

func known(name string) bool {
	i := sort.SearchStrings(sortedOrder, name)
	return i < len(sortedOrder) && sortedOrder[i] == name
}

var sortedOrder = func() []string {
	out := append([]string(nil), Order...)
	sort.Strings(out)
	return out
}()
