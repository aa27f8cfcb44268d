package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderValue(t *testing.T) {
	headers := map[string][]string{
		"X-Real-Ip":    {"10.0.0.1"},
		"content-type": {"application/json"},
		"Empty":        {},
	}

	assert.Equal(t, "10.0.0.1", HeaderValue(headers, "X-Real-IP"))
	assert.Equal(t, "application/json", HeaderValue(headers, "Content-Type"))
	assert.Equal(t, "", HeaderValue(headers, "Empty"))
	assert.Equal(t, "", HeaderValue(headers, "Origin"))
}

func TestHeaderValues(t *testing.T) {
	headers := map[string][]string{
		"Stripe-Signature": {"t=1,v1=a", "v1=b"},
	}
	assert.Equal(t, []string{"t=1,v1=a", "v1=b"}, HeaderValues(headers, "stripe-signature"))
}
