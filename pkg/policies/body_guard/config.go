package body_guard

import (
	"errors"
	"fmt"
	"strings"
)

const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// formats are the validator tags a field rule may use.
var formats = map[string]struct{}{
	"email":       {},
	"url":         {},
	"uri":         {},
	"uuid":        {},
	"uuid4":       {},
	"ip":          {},
	"ipv4":        {},
	"ipv6":        {},
	"hostname":    {},
	"alphanum":    {},
	"hexadecimal": {},
	"e164":        {},
	"semver":      {},
}

type FieldRule struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Required  bool   `mapstructure:"required"`
	MaxLength int    `mapstructure:"max_length"`
	Format    string `mapstructure:"format"`
}

type Config struct {
	MaxBytes int64       `mapstructure:"max_bytes"`
	Strict   bool        `mapstructure:"strict"`
	Fields   []FieldRule `mapstructure:"fields"`
}

func (c Config) Validate() error {
	if c.MaxBytes <= 0 {
		return errors.New("body_guard max_bytes must be positive")
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return errors.New("body_guard field rule without a name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("body_guard field %q declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Type {
		case "", TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		default:
			return fmt.Errorf("body_guard field %q has unknown type %q", f.Name, f.Type)
		}
		if f.MaxLength < 0 {
			return fmt.Errorf("body_guard field %q has negative max_length", f.Name)
		}
		if f.Format != "" {
			if _, ok := formats[f.Format]; !ok {
				return fmt.Errorf("body_guard field %q has unsupported format %q", f.Name, f.Format)
			}
			if f.Type != "" && f.Type != TypeString {
				return fmt.Errorf("body_guard field %q: format applies to strings only", f.Name)
			}
		}
	}
	return nil
}

func (c Config) hasRequired() bool {
	for _, f := range c.Fields {
		if f.Required {
			return true
		}
	}
	return false
}
