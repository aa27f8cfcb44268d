package http

import (
	"errors"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/handlers/http/response"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type WebhookHandlerDeps struct {
	Logger       *logrus.Logger
	Verifiers    map[string]*signature.WebhookVerifier
	Audit        auditlogs.Service
	TimeProvider func() time.Time
}

type webhookHandler struct {
	logger    *logrus.Logger
	verifiers map[string]*signature.WebhookVerifier
	audit     auditlogs.Service
	now       func() time.Time
}

func NewWebhookHandler(deps WebhookHandlerDeps) Handler {
	h := &webhookHandler{
		logger:    deps.Logger,
		verifiers: deps.Verifiers,
		audit:     deps.Audit,
		now:       time.Now,
	}
	if deps.TimeProvider != nil {
		h.now = deps.TimeProvider
	}
	return h
}

// Handle verifies the provider signature over the body as it arrived on the
// wire, before anything else happens. A request that fails verification
// leaves no trace besides a log line.
func (h *webhookHandler) Handle(c *fiber.Ctx) error {
	provider := c.Params("provider")
	verifier, ok := h.verifiers[provider]
	if !ok {
		return response.Kind(c, domain.KindNotFound)
	}

	body := wireBody(c)
	if err := verifier.Verify(body, c.Get(verifier.Header()), h.now()); err != nil {
		entry := h.logger.WithFields(logrus.Fields{
			"provider": provider,
			"ip":       c.IP(),
		}).WithError(err)
		if errors.Is(err, signature.ErrMissingSecret) {
			entry.Error("webhook provider has no secret configured")
		} else {
			entry.Warn("webhook signature rejected")
		}
		return response.Kind(c, domain.KindSignatureInvalid)
	}

	receipt, err := h.audit.Record(c.UserContext(), auditlogs.ParamsFromRequest(c, audit.EventParams{
		Type:    audit.EventTypeWebhookReceived,
		Outcome: fiber.StatusAccepted,
		Metadata: map[string]interface{}{
			"provider":   provider,
			"body_bytes": len(body),
		},
	}))
	if err != nil {
		return response.Error(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(receipt)
}
