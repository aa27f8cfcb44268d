package http

import (
	"github.com/NeuralTrust/EdgeShield/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	HealthHandler      Handler
	PingHandler        Handler
	VersionHandler     Handler
	WebhookHandler     Handler
	AuditEventsHandler Handler

	// ForwardedHandlers holds one proxy handler per configured route, keyed
	// by route name.
	ForwardedHandlers map[string]Handler
}

// requestBody returns the body as the policy chain left it, decoded and size
// checked, falling back to the raw request body on unshielded routes.
func requestBody(c *fiber.Ctx) []byte {
	if req, ok := middleware.RequestContextFrom(c); ok && req.Body != nil {
		return req.Body
	}
	return c.Request().Body()
}

// wireBody returns the body exactly as the client sent it, before any
// Content-Encoding was removed by the policy chain.
func wireBody(c *fiber.Ctx) []byte {
	if req, ok := middleware.RequestContextFrom(c); ok {
		if req.WireBody != nil {
			return req.WireBody
		}
		if req.Body != nil {
			return req.Body
		}
	}
	return c.Request().Body()
}
