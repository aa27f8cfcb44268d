package types

import (
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
)

// PolicyError is a terminal rejection. Only Kind and Message reach the
// client; Err is for logs.
type PolicyError struct {
	StatusCode int
	Kind       domain.ErrorKind
	Message    string
	Err        error
	Details    map[string]interface{}
}

func NewPolicyError(kind domain.ErrorKind, err error) *PolicyError {
	return &PolicyError{
		StatusCode: kind.Status(),
		Kind:       kind,
		Message:    kind.PublicMessage(),
		Err:        err,
	}
}

func (e *PolicyError) WithDetail(key string, value interface{}) *PolicyError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *PolicyError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// PolicyResponse is a terminal outcome that is not an error, such as an
// answered preflight.
type PolicyResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string][]string
}
