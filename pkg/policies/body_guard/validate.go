package body_guard

import (
	"encoding/json"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// check returns the sorted names of every field that violates its rule.
// fromForm relaxes type checks to "parses as" since form values are strings.
func check(body map[string]interface{}, cfg Config, fromForm bool) []string {
	var offending []string
	declared := make(map[string]struct{}, len(cfg.Fields))

	for _, rule := range cfg.Fields {
		declared[rule.Name] = struct{}{}
		v, present := body[rule.Name]
		if !present || v == nil {
			if rule.Required {
				offending = append(offending, rule.Name)
			}
			continue
		}
		if !fieldValid(v, rule, fromForm) {
			offending = append(offending, rule.Name)
		}
	}

	if cfg.Strict {
		for k := range body {
			if _, ok := declared[k]; !ok {
				offending = append(offending, k)
			}
		}
	}
	sort.Strings(offending)
	return offending
}

func fieldValid(v interface{}, rule FieldRule, fromForm bool) bool {
	if !typeMatches(v, rule.Type, fromForm) {
		return false
	}
	if rule.MaxLength > 0 {
		switch t := v.(type) {
		case string:
			if utf8.RuneCountInString(t) > rule.MaxLength {
				return false
			}
		case []interface{}:
			if len(t) > rule.MaxLength {
				return false
			}
		}
	}
	if rule.Format != "" {
		s, ok := v.(string)
		if !ok || validate.Var(s, rule.Format) != nil {
			return false
		}
	}
	return true
}

func typeMatches(v interface{}, want string, fromForm bool) bool {
	if want == "" {
		return true
	}
	if fromForm {
		s, _ := v.(string)
		switch want {
		case TypeString:
			return true
		case TypeNumber:
			_, err := strconv.ParseFloat(s, 64)
			return err == nil
		case TypeInteger:
			_, err := strconv.ParseInt(s, 10, 64)
			return err == nil
		case TypeBoolean:
			_, err := strconv.ParseBool(s)
			return err == nil
		default:
			return false
		}
	}

	switch t := v.(type) {
	case string:
		return want == TypeString
	case bool:
		return want == TypeBoolean
	case json.Number:
		if want == TypeNumber {
			return true
		}
		if want == TypeInteger {
			_, err := t.Int64()
			return err == nil
		}
		return false
	case map[string]interface{}:
		return want == TypeObject
	case []interface{}:
		return want == TypeArray
	default:
		return false
	}
}
