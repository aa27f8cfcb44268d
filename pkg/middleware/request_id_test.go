package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(NewRequestIDMiddleware(quietLogger()).Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(string(common.CorrelationIDContextKey)).(string))
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "caller id is echoed", incoming: "req-123", keep: true},
		{name: "missing id is generated", incoming: ""},
		{name: "oversized id is replaced", incoming: strings.Repeat("a", common.MaxRequestIDLength+1)},
		{name: "id with spaces is replaced", incoming: "two words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(common.RequestIDHeader, tt.incoming)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			got := resp.Header.Get(common.RequestIDHeader)
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				_, err := uuid.Parse(got)
				assert.NoError(t, err)
			}
		})
	}
}

func TestPanicRecoverMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(NewPanicRecoverMiddleware(quietLogger()).Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(202))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(0))
}
