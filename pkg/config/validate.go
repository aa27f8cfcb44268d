package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Validate runs struct tag rules and the cross-section checks that tags
// cannot express. Any failure must abort startup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, err := time.ParseDuration(c.RateLimit.Window); err != nil {
		return fmt.Errorf("%w: rate_limit.window: %v", ErrInvalidConfig, err)
	}
	if c.RateLimit.StoreTimeout <= 0 {
		return fmt.Errorf("%w: rate_limit.store_timeout must be positive", ErrInvalidConfig)
	}

	if c.Audit.Enabled {
		if c.Audit.SinkTimeout <= 0 {
			return fmt.Errorf("%w: audit.sink_timeout must be positive", ErrInvalidConfig)
		}
		if err := c.validateSinks(); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(c.Routes))
	for _, r := range c.Routes {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("%w: duplicate route name %q", ErrInvalidConfig, r.Name)
		}
		seen[r.Name] = struct{}{}
		if !r.Builtin && r.Upstream == "" {
			return fmt.Errorf("%w: route %q needs an upstream", ErrInvalidConfig, r.Name)
		}
	}
	return nil
}

func (c *Config) validateSinks() error {
	sinks := append([]string{c.Audit.Primary}, c.Audit.Fallbacks...)
	seen := make(map[string]struct{}, len(sinks))
	for _, s := range sinks {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: audit sink %q listed twice", ErrInvalidConfig, s)
		}
		seen[s] = struct{}{}

		switch s {
		case "s3":
			if c.Audit.S3.Bucket == "" {
				return fmt.Errorf("%w: audit.s3.bucket is required", ErrInvalidConfig)
			}
		case "postgres":
			if c.Database.Host == "" || c.Database.DBName == "" {
				return fmt.Errorf("%w: database.host and database.name are required for the postgres sink", ErrInvalidConfig)
			}
		case "kafka":
			if c.Audit.Kafka.Host == "" || c.Audit.Kafka.Port == "" || c.Audit.Kafka.Topic == "" {
				return fmt.Errorf("%w: audit.kafka host, port and topic are required", ErrInvalidConfig)
			}
		}
	}
	return nil
}
