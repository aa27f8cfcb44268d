package cors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
	"github.com/NeuralTrust/EdgeShield/pkg/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const PolicyName = "cors"

const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderVary             = "Vary"

	headerRequestMethod  = "Access-Control-Request-Method"
	headerRequestHeaders = "Access-Control-Request-Headers"
)

var standardMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {},
	"OPTIONS": {}, "HEAD": {}, "PATCH": {},
}

type Config struct {
	AllowOrigins     []string `mapstructure:"allowed_origins"`
	AllowMethods     []string `mapstructure:"allowed_methods"`
	AllowHeaders     []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	MaxAge           string   `mapstructure:"max_age"`
	LogViolations    bool     `mapstructure:"log_violations"`
}

// Validate rejects configurations a browser would misinterpret. An empty
// origin list is valid and denies every cross-origin request.
func (c Config) Validate() error {
	wildcard := false
	for _, origin := range c.AllowOrigins {
		if origin == "*" {
			wildcard = true
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid origin format: %q", origin)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("origin must use http or https scheme: %q", origin)
		}
		if parsed.Path != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
			return fmt.Errorf("origin must not carry a path, query or fragment: %q", origin)
		}
	}

	if c.AllowCredentials && wildcard {
		return errors.New(`allow_credentials cannot be true when allowed_origins contains "*"`)
	}

	for _, method := range c.AllowMethods {
		if _, ok := standardMethods[strings.ToUpper(method)]; !ok {
			return fmt.Errorf("invalid HTTP method in allowed_methods: %q", method)
		}
	}

	if c.MaxAge != "" {
		d, err := time.ParseDuration(c.MaxAge)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid max_age value: %q", c.MaxAge)
		}
	}
	return nil
}

func DecodeConfig(settings map[string]interface{}) (Config, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid cors config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Evaluation is the outcome of checking one request against a Config.
// Headers is empty whenever Allow is false.
type Evaluation struct {
	Allow     bool
	Preflight bool
	Headers   map[string]string
}

// Evaluate is the pure CORS decision. A request without Origin is not a
// cross-origin request and is allowed with no headers.
func Evaluate(origin, method, requestedMethod, requestedHeaders string, cfg Config) Evaluation {
	ev := Evaluation{Headers: map[string]string{}}
	if origin == "" {
		ev.Allow = true
		return ev
	}
	ev.Preflight = strings.EqualFold(method, http.MethodOptions) && requestedMethod != ""

	exact, wildcard := matchOrigin(origin, cfg.AllowOrigins)
	if !exact && !wildcard {
		return ev
	}
	if ev.Preflight && !methodAllowed(requestedMethod, cfg.AllowMethods) {
		return ev
	}

	ev.Allow = true
	if exact {
		ev.Headers[HeaderAllowOrigin] = origin
		ev.Headers[HeaderVary] = "Origin"
		if cfg.AllowCredentials {
			ev.Headers[HeaderAllowCredentials] = "true"
		}
	} else {
		ev.Headers[HeaderAllowOrigin] = "*"
	}

	if !ev.Preflight {
		if len(cfg.ExposeHeaders) > 0 {
			ev.Headers[HeaderExposeHeaders] = strings.Join(cfg.ExposeHeaders, ", ")
		}
		return ev
	}

	ev.Headers[HeaderAllowMethods] = strings.ToUpper(strings.Join(cfg.AllowMethods, ", "))
	if allowed := allowedRequestHeaders(requestedHeaders, cfg.AllowHeaders); allowed != "" {
		ev.Headers[HeaderAllowHeaders] = allowed
	}
	if cfg.MaxAge != "" {
		if d, err := time.ParseDuration(cfg.MaxAge); err == nil {
			ev.Headers[HeaderMaxAge] = strconv.Itoa(int(d.Seconds()))
		}
	}
	return ev
}

func matchOrigin(origin string, allowed []string) (exact, wildcard bool) {
	for _, o := range allowed {
		if o == origin {
			return true, false
		}
		if o == "*" {
			wildcard = true
		}
	}
	return false, wildcard
}

func methodAllowed(method string, allowed []string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// allowedRequestHeaders echoes the requested headers that appear in the
// allowlist; with nothing requested it advertises the allowlist itself.
func allowedRequestHeaders(requested string, allowed []string) string {
	if requested == "" {
		return strings.Join(allowed, ", ")
	}
	var out []string
	for _, h := range strings.Split(requested, ",") {
		h = strings.TrimSpace(h)
		for _, a := range allowed {
			if strings.EqualFold(a, h) {
				out = append(out, h)
				break
			}
		}
	}
	return strings.Join(out, ", ")
}

type Policy struct {
	cfg    Config
	logger *logrus.Logger
}

func New(logger *logrus.Logger, settings map[string]interface{}) (*Policy, error) {
	cfg, err := DecodeConfig(settings)
	if err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg, logger: logger}, nil
}

func (p *Policy) Name() string {
	return PolicyName
}

func (p *Policy) Evaluate(
	_ context.Context,
	req *types.RequestContext,
	resp *types.ResponseContext,
) (*types.PolicyResponse, error) {
	origin := utils.HeaderValue(req.Headers, "Origin")
	ev := Evaluate(
		origin,
		req.Method,
		utils.HeaderValue(req.Headers, headerRequestMethod),
		utils.HeaderValue(req.Headers, headerRequestHeaders),
		p.cfg,
	)

	for k, v := range ev.Headers {
		resp.SetHeader(k, v)
	}

	if ev.Preflight {
		return &types.PolicyResponse{StatusCode: http.StatusNoContent}, nil
	}
	if !ev.Allow {
		if p.cfg.LogViolations {
			p.logger.WithFields(logrus.Fields{
				"origin": origin,
				"method": req.Method,
				"route":  req.RouteID,
			}).Warn("CORS violation: origin not allowed")
		}
		return nil, types.NewPolicyError(domain.KindCorsDenied, fmt.Errorf("origin %q not allowed", origin))
	}
	return nil, nil
}
