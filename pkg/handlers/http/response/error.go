package response

import (
	"errors"

	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// ErrorBody is the only error shape a client ever sees.
type ErrorBody struct {
	Error      domain.ErrorKind `json:"error"`
	Message    string           `json:"message"`
	RetryAfter *int             `json:"retry_after,omitempty"`
	Fields     []string         `json:"fields,omitempty"`
}

// BodyFor maps err to its status and public body. Internal detail carried by
// err never leaves the process.
func BodyFor(err error) (int, ErrorBody) {
	var policyErr *types.PolicyError
	if errors.As(err, &policyErr) {
		body := ErrorBody{Error: policyErr.Kind, Message: policyErr.Kind.PublicMessage()}
		if v, ok := policyErr.Details["retry_after"].(int); ok {
			body.RetryAfter = &v
		}
		if v, ok := policyErr.Details["fields"].([]string); ok {
			body.Fields = v
		}
		status := policyErr.StatusCode
		if status == 0 {
			status = policyErr.Kind.Status()
		}
		return status, body
	}

	kind := domain.KindOf(err)
	return kind.Status(), ErrorBody{Error: kind, Message: kind.PublicMessage()}
}

func Error(c *fiber.Ctx, err error) error {
	status, body := BodyFor(err)
	return c.Status(status).JSON(body)
}

// Kind writes a bare error of the given kind.
func Kind(c *fiber.Ctx, kind domain.ErrorKind) error {
	return c.Status(kind.Status()).JSON(ErrorBody{Error: kind, Message: kind.PublicMessage()})
}
