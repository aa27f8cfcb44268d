package body_guard

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/httpx"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const PolicyName = "body_guard"

type Policy struct {
	cfg    Config
	logger *logrus.Logger
}

func New(logger *logrus.Logger, settings map[string]interface{}) (*Policy, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("invalid body_guard config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg, logger: logger}, nil
}

func (p *Policy) Name() string {
	return PolicyName
}

// Evaluate enforces the size limit before anything is parsed, then checks
// the declared fields. The decoded body replaces the raw one on the request.
func (p *Policy) Evaluate(
	_ context.Context,
	req *types.RequestContext,
	_ *types.ResponseContext,
) (*types.PolicyResponse, error) {
	fr := req.C.Request()

	if declared := fr.Header.ContentLength(); declared > 0 && int64(declared) > p.cfg.MaxBytes {
		return nil, tooLarge(fmt.Errorf("declared length %d exceeds %d", declared, p.cfg.MaxBytes))
	}

	raw, err := p.readBody(fr)
	if err != nil {
		return nil, err
	}

	body := raw
	if enc := string(fr.Header.Peek(fiber.HeaderContentEncoding)); enc != "" {
		decoded, changed, err := httpx.DecodeBounded(enc, raw, p.cfg.MaxBytes)
		switch {
		case errors.Is(err, httpx.ErrDecodedTooLarge):
			return nil, tooLarge(err)
		case err != nil:
			return nil, types.NewPolicyError(domain.KindSchemaInvalid, fmt.Errorf("undecodable body: %w", err))
		}
		if changed {
			req.WireBody = append([]byte(nil), raw...)
			body = decoded
			fr.SetBodyRaw(body)
			fr.Header.Del(fiber.HeaderContentEncoding)
			fr.Header.SetContentLength(len(body))
		}
	}
	req.Body = body

	parsed, perr := p.checkSchema(string(fr.Header.ContentType()), body)
	if perr != nil {
		return nil, perr
	}
	req.Parsed = parsed
	req.C.Locals(string(common.ParsedBodyContextKey), parsed)
	return nil, nil
}

// readBody reads at most max+1 bytes so an oversized stream is detected
// without buffering it.
func (p *Policy) readBody(fr *fasthttp.Request) ([]byte, error) {
	var raw []byte
	if fr.IsBodyStream() {
		var err error
		raw, err = io.ReadAll(io.LimitReader(fr.BodyStream(), p.cfg.MaxBytes+1))
		if err != nil {
			return nil, types.NewPolicyError(domain.KindSchemaInvalid, fmt.Errorf("read body: %w", err))
		}
		if int64(len(raw)) <= p.cfg.MaxBytes {
			fr.SetBodyRaw(raw)
		}
	} else {
		raw = fr.Body()
	}
	if int64(len(raw)) > p.cfg.MaxBytes {
		return nil, tooLarge(fmt.Errorf("body exceeds %d bytes", p.cfg.MaxBytes))
	}
	return raw, nil
}

func (p *Policy) checkSchema(contentType string, body []byte) (map[string]interface{}, *types.PolicyError) {
	if len(body) == 0 {
		if p.cfg.hasRequired() {
			return nil, schemaInvalid(errors.New("empty body"), check(map[string]interface{}{}, p.cfg, false))
		}
		return nil, nil
	}

	switch mediaOf(contentType) {
	case mediaJSON:
		parsed, err := parseJSON(body)
		if err != nil {
			return nil, schemaInvalid(err, nil)
		}
		if fields := check(parsed, p.cfg, false); len(fields) > 0 {
			return nil, schemaInvalid(errors.New("field rules violated"), fields)
		}
		return parsed, nil
	case mediaForm:
		parsed := parseForm(body)
		if fields := check(parsed, p.cfg, true); len(fields) > 0 {
			return nil, schemaInvalid(errors.New("field rules violated"), fields)
		}
		return parsed, nil
	default:
		if len(p.cfg.Fields) > 0 {
			return nil, schemaInvalid(fmt.Errorf("%w: %q", errUnsupportedContent, contentType), nil)
		}
		return nil, nil
	}
}

func tooLarge(err error) *types.PolicyError {
	return types.NewPolicyError(domain.KindPayloadTooLarge, err)
}

func schemaInvalid(err error, fields []string) *types.PolicyError {
	pe := types.NewPolicyError(domain.KindSchemaInvalid, err)
	if len(fields) > 0 {
		pe.WithDetail("fields", fields)
	}
	return pe
}
