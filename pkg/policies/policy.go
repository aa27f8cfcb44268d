package policies

import (
	"context"

	"github.com/NeuralTrust/EdgeShield/pkg/policies/body_guard"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/cors"
	"github.com/NeuralTrust/EdgeShield/pkg/policies/rate_limiter"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
)

// Policy inspects a request before it reaches a handler.
//
// Evaluate returns (nil, nil) to let the request continue, a PolicyResponse
// to answer it directly, or an error to reject it. A *types.PolicyError
// rejection is rendered with its kind; any other error is an internal error.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, req *types.RequestContext, resp *types.ResponseContext) (*types.PolicyResponse, error)
}

// Order is the fixed evaluation order of every chain.
var Order = []string{
	cors.PolicyName,
	rate_limiter.PolicyName,
	body_guard.PolicyName,
}
