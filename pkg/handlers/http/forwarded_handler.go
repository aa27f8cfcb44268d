package http

import (
	"bytes"
	"strings"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/handlers/http/response"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const defaultUpstreamTimeout = 30 * time.Second

type ForwardedHandlerDeps struct {
	Logger  *logrus.Logger
	Client  httpx.Client
	Route   config.RouteConfig
	Audit   auditlogs.Service
	Timeout time.Duration
}

type forwardedHandler struct {
	logger   *logrus.Logger
	client   httpx.Client
	route    config.RouteConfig
	upstream string
	audit    auditlogs.Service
	timeout  time.Duration
}

func NewForwardedHandler(deps ForwardedHandlerDeps) Handler {
	h := &forwardedHandler{
		logger:   deps.Logger,
		client:   deps.Client,
		route:    deps.Route,
		upstream: strings.TrimSuffix(deps.Route.Upstream, "/"),
		audit:    deps.Audit,
		timeout:  deps.Timeout,
	}
	if h.timeout <= 0 {
		h.timeout = defaultUpstreamTimeout
	}
	return h
}

func (h *forwardedHandler) Handle(c *fiber.Ctx) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	targetURL := h.upstream + c.OriginalURL()
	h.buildRequest(c, req, targetURL)

	if err := h.client.DoTimeout(req, resp, h.timeout); err != nil {
		h.logger.WithFields(logrus.Fields{
			"route":  h.route.Name,
			"target": targetURL,
		}).WithError(err).Error("upstream request failed")
		return response.Kind(c, domain.KindUpstreamFailed)
	}

	status := resp.StatusCode()
	if h.route.AuditEvent != "" && h.audit != nil {
		_, err := h.audit.Record(c.UserContext(), auditlogs.ParamsFromRequest(c, audit.EventParams{
			Type:    h.route.AuditEvent,
			Outcome: status,
			Metadata: map[string]interface{}{
				"route":  h.route.Name,
				"method": c.Method(),
				"path":   c.Path(),
			},
		}))
		if err != nil {
			return response.Error(c, err)
		}
	}

	h.copyResponse(c, resp)
	return nil
}

func (h *forwardedHandler) buildRequest(c *fiber.Ctx, req *fasthttp.Request, targetURL string) {
	req.SetRequestURI(targetURL)
	req.Header.SetMethod(c.Method())

	c.Request().Header.VisitAll(func(key, value []byte) {
		switch {
		case bytes.EqualFold(key, []byte(fiber.HeaderHost)),
			bytes.EqualFold(key, []byte(fiber.HeaderContentLength)):
			return
		}
		req.Header.AddBytesKV(key, value)
	})
	httpx.StripHopHeaders(&req.Header)
	req.Header.Set(fiber.HeaderXForwardedFor, c.IP())

	if body := requestBody(c); len(body) > 0 {
		req.SetBody(body)
	}
}

// copyResponse writes the upstream answer. Headers already set by the policy
// chain take precedence over upstream ones.
func (h *forwardedHandler) copyResponse(c *fiber.Ctx, resp *fasthttp.Response) {
	out := &c.Response().Header
	preset := make(map[string]struct{})
	out.VisitAll(func(key, _ []byte) {
		preset[strings.ToLower(string(key))] = struct{}{}
	})
	delete(preset, "content-type")

	httpx.StripHopHeaders(&resp.Header)
	resp.Header.VisitAll(func(key, value []byte) {
		name := strings.ToLower(string(key))
		if name == "content-length" {
			return
		}
		if _, ok := preset[name]; ok {
			return
		}
		out.AddBytesKV(key, value)
	})
	c.Status(resp.StatusCode())
	c.Response().SetBody(resp.Body())
}
