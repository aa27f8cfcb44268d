package policies

import (
	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/body_guard"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/rate_limiter"
)

// builtinDefaults sit between the global settings and a route's own
// overrides for the endpoints the shield serves itself.
var builtinDefaults = map[string]map[string]map[string]interface{}{
	config.RouteAuditIngest: {
		rate_limiter.PolicyName: {
			"fail_mode": "closed",
		},
		body_guard.PolicyName: {
			"strict": true,
			"fields": []interface{}{
				map[string]interface{}{"name": "type", "type": body_guard.TypeString, "required": true, "max_length": 64},
				map[string]interface{}{"name": "actor_id", "type": body_guard.TypeString, "max_length": 256},
				map[string]interface{}{"name": "correlation_id", "type": body_guard.TypeString, "max_length": 128},
				map[string]interface{}{"name": "outcome", "type": body_guard.TypeInteger},
				map[string]interface{}{"name": "metadata", "type": body_guard.TypeObject},
			},
		},
	},
}
