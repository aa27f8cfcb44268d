package httpx

import (
	"time"

	"github.com/valyala/fasthttp"
)

const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxConnsPerHost     = 512
	DefaultMaxIdleConnDuration = 10 * time.Second
	DefaultMaxResponseBodySize = 32 << 20
)

// Client forwards a prepared request to an upstream.
type Client interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// UpstreamOptions tunes the client shared by every proxy route. Zero fields
// take the package defaults.
type UpstreamOptions struct {
	Timeout             time.Duration
	MaxConnsPerHost     int
	MaxResponseBodySize int
}

func (o UpstreamOptions) withDefaults() UpstreamOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxConnsPerHost <= 0 {
		o.MaxConnsPerHost = DefaultMaxConnsPerHost
	}
	if o.MaxResponseBodySize <= 0 {
		o.MaxResponseBodySize = DefaultMaxResponseBodySize
	}
	return o
}

// NewUpstreamClient builds the fasthttp client proxy routes forward through.
// Upstream responses larger than MaxResponseBodySize fail the request.
func NewUpstreamClient(opts UpstreamOptions) *fasthttp.Client {
	opts = opts.withDefaults()
	return &fasthttp.Client{
		ReadTimeout:              opts.Timeout,
		WriteTimeout:             opts.Timeout,
		MaxConnsPerHost:          opts.MaxConnsPerHost,
		MaxIdleConnDuration:      DefaultMaxIdleConnDuration,
		MaxResponseBodySize:      opts.MaxResponseBodySize,
		NoDefaultUserAgentHeader: true,
	}
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func StripHopHeaders(h interface{ Del(key string) }) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
