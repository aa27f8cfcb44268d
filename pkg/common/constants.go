package common

import "time"

const (
	RequestIDHeader = "X-Request-Id"

	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
	RetryAfterHeader         = "Retry-After"

	DefaultStoreTimeout    = 2 * time.Second
	DefaultSinkTimeout     = 3 * time.Second
	DefaultMemoryRetention = 24 * time.Hour

	MaxRequestIDLength = 128
)
