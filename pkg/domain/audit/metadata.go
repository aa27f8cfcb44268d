package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/NeuralTrust/EdgeShield/pkg/domain"
)

const (
	DefaultMaxMetadataKeys   = 32
	DefaultMaxKeyLength      = 64
	DefaultMaxValueLength    = 1024
	DefaultMaxMetadataBytes  = 4096
	DefaultMaxMetadataDepth  = 4
	DefaultMaxActorIDLength  = 256
	DefaultMaxEventTypeBytes = 64
)

type Limits struct {
	MaxKeys        int
	MaxKeyLength   int
	MaxValueLength int
	MaxBytes       int
	// MaxDepth counts nesting below the top-level keys.
	MaxDepth int
}

func DefaultLimits() Limits {
	return Limits{
		MaxKeys:        DefaultMaxMetadataKeys,
		MaxKeyLength:   DefaultMaxKeyLength,
		MaxValueLength: DefaultMaxValueLength,
		MaxBytes:       DefaultMaxMetadataBytes,
		MaxDepth:       DefaultMaxMetadataDepth,
	}
}

// Metadata maps string keys to JSON values: scalars, nested objects and
// arrays, bounded by Limits.
type Metadata map[string]interface{}

// NewMetadata deep-copies in, rejecting anything outside limits.
func NewMetadata(in map[string]interface{}, limits Limits) (Metadata, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if limits.MaxKeys > 0 && len(in) > limits.MaxKeys {
		return nil, invalidMetadata(fmt.Sprintf("at most %d keys allowed", limits.MaxKeys))
	}

	out, err := object(in, limits, 0)
	if err != nil {
		return nil, invalidMetadata(err.Error())
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, invalidMetadata("metadata is not serializable")
	}
	if limits.MaxBytes > 0 && len(raw) > limits.MaxBytes {
		return nil, invalidMetadata(fmt.Sprintf("metadata exceeds %d bytes", limits.MaxBytes))
	}
	return Metadata(out), nil
}

func object(in map[string]interface{}, limits Limits, depth int) (map[string]interface{}, error) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]interface{}, len(in))
	for _, k := range keys {
		if k == "" || !utf8.ValidString(k) {
			return nil, fmt.Errorf("keys must be non-empty utf-8 strings")
		}
		if limits.MaxKeyLength > 0 && utf8.RuneCountInString(k) > limits.MaxKeyLength {
			return nil, fmt.Errorf("key %q is too long", k)
		}
		v, err := value(in[k], limits, depth)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func value(v interface{}, limits Limits, depth int) (interface{}, error) {
	switch t := v.(type) {
	case nil, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t, nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		if !utf8.ValidString(t) {
			return nil, fmt.Errorf("value is not valid utf-8")
		}
		if limits.MaxValueLength > 0 && utf8.RuneCountInString(t) > limits.MaxValueLength {
			return nil, fmt.Errorf("value longer than %d characters", limits.MaxValueLength)
		}
		return t, nil
	case map[string]interface{}:
		if err := descend(limits, depth); err != nil {
			return nil, err
		}
		return object(t, limits, depth+1)
	case []interface{}:
		if err := descend(limits, depth); err != nil {
			return nil, err
		}
		out := make([]interface{}, len(t))
		for i, item := range t {
			c, err := value(item, limits, depth+1)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func descend(limits Limits, depth int) error {
	if limits.MaxDepth > 0 && depth >= limits.MaxDepth {
		return fmt.Errorf("nested deeper than %d levels", limits.MaxDepth)
	}
	return nil
}

func invalidMetadata(msg string) error {
	return domain.NewShieldError(domain.KindSchemaInvalid, "invalid audit metadata: "+msg, nil)
}
