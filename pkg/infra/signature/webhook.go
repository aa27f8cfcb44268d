package signature

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	SchemeHMACHex     = "hmac_hex"
	SchemeTimestamped = "timestamped"

	DefaultSignatureHeader = "X-Signature"
	DefaultTolerance       = 5 * time.Minute
)

var (
	ErrSignatureMissing  = errors.New("signature header missing")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrSignatureExpired  = errors.New("signature timestamp outside tolerance")
	ErrMalformedHeader   = errors.New("malformed signature header")
)

type WebhookConfig struct {
	Scheme    string `mapstructure:"scheme"`
	Header    string `mapstructure:"header"`
	Secret    string `mapstructure:"secret"`
	Tolerance string `mapstructure:"tolerance"`
}

type WebhookVerifier struct {
	scheme    string
	header    string
	engine    *Engine
	tolerance time.Duration
}

// NewWebhookVerifier builds a verifier from a provider settings map. A missing
// secret is not a construction error: every verification then fails.
func NewWebhookVerifier(settings map[string]interface{}) (*WebhookVerifier, error) {
	var cfg WebhookConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}

	v := &WebhookVerifier{
		scheme:    cfg.Scheme,
		header:    cfg.Header,
		engine:    NewEngine(cfg.Secret),
		tolerance: DefaultTolerance,
	}
	if v.scheme == "" {
		v.scheme = SchemeHMACHex
	}
	if v.scheme != SchemeHMACHex && v.scheme != SchemeTimestamped {
		return nil, fmt.Errorf("unknown webhook signature scheme %q", cfg.Scheme)
	}
	if v.header == "" {
		v.header = DefaultSignatureHeader
	}
	if cfg.Tolerance != "" {
		d, err := time.ParseDuration(cfg.Tolerance)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid webhook tolerance %q", cfg.Tolerance)
		}
		v.tolerance = d
	}
	return v, nil
}

func (v *WebhookVerifier) Header() string {
	return v.header
}

func (v *WebhookVerifier) Verify(body []byte, headerValue string, now time.Time) error {
	if len(v.engine.secret) == 0 {
		return ErrMissingSecret
	}
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" {
		return ErrSignatureMissing
	}

	if v.scheme == SchemeTimestamped {
		return v.verifyTimestamped(body, headerValue, now)
	}

	sig := strings.TrimPrefix(headerValue, "sha256=")
	if !v.engine.Verify(body, strings.ToLower(sig)) {
		return ErrSignatureMismatch
	}
	return nil
}

// verifyTimestamped checks headers of the form t=<unix>,v1=<hex>[,v1=<hex>]
// where the signed content is "<t>.<body>".
func (v *WebhookVerifier) verifyTimestamped(body []byte, headerValue string, now time.Time) error {
	var ts string
	var candidates []string
	for _, part := range strings.Split(headerValue, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			candidates = append(candidates, val)
		}
	}
	if ts == "" || len(candidates) == 0 {
		return ErrMalformedHeader
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}
	skew := now.Sub(time.Unix(unix, 0))
	if math.Abs(float64(skew)) > float64(v.tolerance) {
		return ErrSignatureExpired
	}

	signed := make([]byte, 0, len(ts)+1+len(body))
	signed = append(signed, ts...)
	signed = append(signed, '.')
	signed = append(signed, body...)

	for _, c := range candidates {
		if v.engine.Verify(signed, strings.ToLower(c)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
