package rate_limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	domainRL "github.com/NeuralTrust/EdgeShield/pkg/domain/ratelimit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/fingerprint"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/ratelimit"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const PolicyName = "rate_limiter"

const (
	ScopeIP      = "ip"
	ScopeIPAgent = "ip_agent"
	ScopeGlobal  = "global"
)

type Config struct {
	Limit    int    `mapstructure:"limit"`
	Window   string `mapstructure:"window"`
	FailMode string `mapstructure:"fail_mode"`
	Scope    string `mapstructure:"scope"`
}

func (c Config) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("rate limiter limit must not be negative, got %d", c.Limit)
	}
	d, err := time.ParseDuration(c.Window)
	if err != nil {
		return fmt.Errorf("invalid window format %q: %w", c.Window, err)
	}
	if d < time.Millisecond {
		return fmt.Errorf("rate limiter window must be at least 1ms, got %s", c.Window)
	}
	if !domainRL.FailMode(c.FailMode).Valid() {
		return fmt.Errorf("rate limiter fail_mode must be 'open' or 'closed', got %q", c.FailMode)
	}
	switch c.Scope {
	case "", ScopeIP, ScopeIPAgent, ScopeGlobal:
	default:
		return fmt.Errorf("unknown rate limiter scope %q", c.Scope)
	}
	return nil
}

type Policy struct {
	limiter  ratelimit.Limiter
	logger   *logrus.Logger
	resource string
	cfg      Config
	window   time.Duration
	mode     domainRL.FailMode
	now      func() time.Time
}

type Opts struct {
	TimeProvider func() time.Time
}

// New builds a limiter policy for one resource (usually the route name).
// Every route gets its own counters.
func New(
	limiter ratelimit.Limiter,
	logger *logrus.Logger,
	resource string,
	settings map[string]interface{},
	opts *Opts,
) (*Policy, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("invalid rate limiter config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	window, _ := time.ParseDuration(cfg.Window)

	p := &Policy{
		limiter:  limiter,
		logger:   logger,
		resource: resource,
		cfg:      cfg,
		window:   window,
		mode:     domainRL.FailMode(cfg.FailMode),
		now:      time.Now,
	}
	if opts != nil && opts.TimeProvider != nil {
		p.now = opts.TimeProvider
	}
	return p, nil
}

func (p *Policy) Name() string {
	return PolicyName
}

func (p *Policy) Evaluate(
	ctx context.Context,
	req *types.RequestContext,
	resp *types.ResponseContext,
) (*types.PolicyResponse, error) {
	key := p.key(req)

	decision, err := p.limiter.Admit(ctx, key, p.cfg.Limit, p.window, p.mode)
	if err != nil && !domain.IsKind(err, domain.KindStoreUnreachable) {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp.SetHeader(common.RateLimitLimitHeader, strconv.Itoa(decision.Limit))
	resp.SetHeader(common.RateLimitRemainingHeader, strconv.Itoa(decision.Remaining))
	resp.SetHeader(common.RateLimitResetHeader, strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if req.Metadata != nil {
		req.Metadata[string(common.RateLimitContextKey)] = decision
	}

	if err != nil {
		return nil, types.NewPolicyError(domain.KindStoreUnreachable, err)
	}
	if !decision.Admitted {
		retryAfter := decision.RetryAfter(p.now())
		resp.SetHeader(common.RetryAfterHeader, strconv.Itoa(retryAfter))
		p.logger.WithFields(logrus.Fields{
			"route": p.resource,
			"key":   key.String(),
			"limit": decision.Limit,
		}).Debug("rate limit exceeded")
		return nil, types.NewPolicyError(
			domain.KindRateLimited,
			fmt.Errorf("limit of %d per %s exceeded", p.cfg.Limit, p.window),
		).WithDetail("retry_after", retryAfter)
	}
	return nil, nil
}

func (p *Policy) key(req *types.RequestContext) domainRL.Key {
	switch p.cfg.Scope {
	case ScopeGlobal:
		return domainRL.NewKey(ScopeGlobal, p.resource, "")
	case ScopeIPAgent:
		fp := fingerprint.New(req.Headers, req.IP)
		return domainRL.NewKey(fp.IP, p.resource, fp.Agent)
	default:
		return domainRL.NewKey(fingerprint.ClientIP(req.IP), p.resource, "")
	}
}
