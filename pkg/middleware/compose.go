package middleware

import (
	"errors"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/handlers/http/response"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/EdgeShield/pkg/policies"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	resultPass      = "pass"
	resultReject    = "reject"
	resultPreflight = "preflight"
	resultError     = "error"
)

// Compose wraps a handler in chain. Policies run in the order given and the
// first terminal outcome ends the request; the handler only runs when every
// policy lets the request through. Headers contributed by policies are
// written on every outcome.
func Compose(logger *logrus.Logger, routeID string, chain ...policies.Policy) func(fiber.Handler) fiber.Handler {
	return func(next fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			c.Locals(string(common.RouteContextKey), routeID)

			req := &types.RequestContext{
				C:        c,
				Context:  c.UserContext(),
				RouteID:  routeID,
				Headers:  c.GetReqHeaders(),
				Method:   c.Method(),
				Path:     c.Path(),
				IP:       c.IP(),
				Metadata: make(map[string]interface{}),
			}
			resp := types.NewResponseContext()

			for _, p := range chain {
				pr, err := p.Evaluate(req.Context, req, resp)
				if err != nil {
					applyHeaders(c, resp.Headers)
					var policyErr *types.PolicyError
					if errors.As(err, &policyErr) {
						decision(routeID, p.Name(), resultReject)
						logger.WithFields(logrus.Fields{
							"route":  routeID,
							"policy": p.Name(),
							"kind":   policyErr.Kind,
						}).WithError(policyErr.Err).Debug("request rejected")
					} else {
						decision(routeID, p.Name(), resultError)
						logger.WithFields(logrus.Fields{
							"route":  routeID,
							"policy": p.Name(),
						}).WithError(err).Error("policy evaluation failed")
					}
					return response.Error(c, err)
				}
				if pr != nil {
					decision(routeID, p.Name(), resultPreflight)
					applyHeaders(c, resp.Headers)
					applyHeaders(c, pr.Headers)
					c.Status(pr.StatusCode)
					if len(pr.Body) > 0 {
						return c.Send(pr.Body)
					}
					return nil
				}
				decision(routeID, p.Name(), resultPass)
			}

			applyHeaders(c, resp.Headers)
			c.Locals(string(common.RequestContextKey), req)
			return next(c)
		}
	}
}

// RequestContextFrom returns the context the composer built for c, if any.
func RequestContextFrom(c *fiber.Ctx) (*types.RequestContext, bool) {
	req, ok := c.Locals(string(common.RequestContextKey)).(*types.RequestContext)
	return req, ok
}

func applyHeaders(c *fiber.Ctx, headers map[string][]string) {
	for k, values := range headers {
		for i, v := range values {
			if i == 0 {
				c.Set(k, v)
			} else {
				c.Append(k, v)
			}
		}
	}
}

func decision(route, policy, result string) {
	prometheus.PolicyDecisions.WithLabelValues(route, policy, result).Inc()
}
