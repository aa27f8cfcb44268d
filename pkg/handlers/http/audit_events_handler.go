package http

import (
	"encoding/json"
	"sort"

	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/handlers/http/response"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/middleware"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type auditEventsHandler struct {
	logger *logrus.Logger
	audit  auditlogs.Service
}

func NewAuditEventsHandler(logger *logrus.Logger, audit auditlogs.Service) Handler {
	return &auditEventsHandler{logger: logger, audit: audit}
}

// Handle records an event submitted by an internal caller. The body has
// already passed the route's schema; conversion here only narrows types.
func (h *auditEventsHandler) Handle(c *fiber.Ctx) error {
	req, ok := middleware.RequestContextFrom(c)
	if !ok || req.Parsed == nil {
		return response.Kind(c, domain.KindSchemaInvalid)
	}

	params, bad := eventParams(req.Parsed)
	if len(bad) > 0 {
		return response.Error(c, types.NewPolicyError(domain.KindSchemaInvalid, nil).WithDetail("fields", bad))
	}

	receipt, err := h.audit.Record(c.UserContext(), auditlogs.ParamsFromRequest(c, params))
	if err != nil {
		if domain.IsKind(err, domain.KindSchemaInvalid) {
			h.logger.WithError(err).Debug("audit event rejected")
		}
		return response.Error(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(receipt)
}

func eventParams(body map[string]interface{}) (audit.EventParams, []string) {
	var (
		params audit.EventParams
		bad    []string
	)
	str := func(name string) string {
		v, present := body[name]
		if !present {
			return ""
		}
		s, ok := v.(string)
		if !ok {
			bad = append(bad, name)
		}
		return s
	}

	params.Type = str("type")
	params.ActorID = str("actor_id")
	params.CorrelationID = str("correlation_id")

	if v, present := body["outcome"]; present {
		n, ok := v.(json.Number)
		if !ok {
			bad = append(bad, "outcome")
		} else if i, err := n.Int64(); err != nil {
			bad = append(bad, "outcome")
		} else {
			params.Outcome = int(i)
		}
	}
	if v, present := body["metadata"]; present {
		m, ok := v.(map[string]interface{})
		if !ok {
			bad = append(bad, "metadata")
		}
		params.Metadata = m
	}

	sort.Strings(bad)
	return params, bad
}
