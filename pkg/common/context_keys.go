package common

type contextKey string

const (
	CorrelationIDContextKey contextKey = "correlation_id"
	RouteContextKey         contextKey = "route"
	ParsedBodyContextKey    contextKey = "parsed_body"
	RateLimitContextKey     contextKey = "rate_limit_decision"
	RequestContextKey       contextKey = "request_context"
)
