package types

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// RequestContext is the view of an inbound request shared by every policy
// in a chain.
type RequestContext struct {
	C        *fiber.Ctx
	Context  context.Context
	RouteID  string
	Headers  map[string][]string
	Method   string
	Path     string
	IP       string
	Body     []byte
	// WireBody holds the bytes as received when Body was produced by
	// removing a Content-Encoding. It is nil otherwise.
	WireBody []byte
	Parsed   map[string]interface{}
	Metadata map[string]interface{}
}

// ResponseContext collects what policies contribute to the eventual
// response. Headers are written whether the request is served or rejected.
type ResponseContext struct {
	Headers    map[string][]string
	StatusCode int
	Metadata   map[string]interface{}
}

func NewResponseContext() *ResponseContext {
	return &ResponseContext{
		Headers:  make(map[string][]string),
		Metadata: make(map[string]interface{}),
	}
}

func (r *ResponseContext) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string][]string)
	}
	r.Headers[name] = []string{value}
}
