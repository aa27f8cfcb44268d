package utils

import (
	"net/http"
	"strings"
)

// HeaderValue returns the first value of name, matching case-insensitively.
// fasthttp normalizes names (X-Real-IP arrives as X-Real-Ip), so an exact map
// lookup is not enough.
func HeaderValue(headers map[string][]string, name string) string {
	if values, ok := headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	if values, ok := headers[http.CanonicalHeaderKey(name)]; ok && len(values) > 0 {
		return values[0]
	}
	for k, values := range headers {
		if strings.EqualFold(k, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// HeaderValues returns every value of name, matching case-insensitively.
func HeaderValues(headers map[string][]string, name string) []string {
	var out []string
	for k, values := range headers {
		if strings.EqualFold(k, name) {
			out = append(out, values...)
		}
	}
	return out
}
