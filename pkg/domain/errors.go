package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable identifier returned to clients in the "error" field.
type ErrorKind string

const (
	KindCorsDenied       ErrorKind = "cors_denied"
	KindRateLimited      ErrorKind = "rate_limited"
	KindPayloadTooLarge  ErrorKind = "payload_too_large"
	KindSchemaInvalid    ErrorKind = "schema_invalid"
	KindSignatureInvalid ErrorKind = "signature_invalid"
	KindAuditUnavailable ErrorKind = "audit_unavailable"
	KindStoreUnreachable ErrorKind = "store_unreachable"
	KindNotFound         ErrorKind = "not_found"
	KindUpstreamFailed   ErrorKind = "upstream_unavailable"
	KindInternal         ErrorKind = "internal_error"
)

var statusByKind = map[ErrorKind]int{
	KindCorsDenied:       http.StatusForbidden,
	KindRateLimited:      http.StatusTooManyRequests,
	KindPayloadTooLarge:  http.StatusRequestEntityTooLarge,
	KindSchemaInvalid:    http.StatusBadRequest,
	KindSignatureInvalid: http.StatusBadRequest,
	KindAuditUnavailable: http.StatusServiceUnavailable,
	KindStoreUnreachable: http.StatusServiceUnavailable,
	KindNotFound:         http.StatusNotFound,
	KindUpstreamFailed:   http.StatusBadGateway,
	KindInternal:         http.StatusInternalServerError,
}

var publicMessages = map[ErrorKind]string{
	KindCorsDenied:       "origin not allowed",
	KindRateLimited:      "too many requests",
	KindPayloadTooLarge:  "request body too large",
	KindSchemaInvalid:    "request body failed validation",
	KindSignatureInvalid: "signature verification failed",
	KindAuditUnavailable: "audit trail unavailable",
	KindStoreUnreachable: "service temporarily unavailable",
	KindNotFound:         "resource not found",
	KindUpstreamFailed:   "upstream unavailable",
	KindInternal:         "internal server error",
}

// Status maps a kind to its HTTP status code.
func (k ErrorKind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// PublicMessage is the only text about a failure that may reach a client.
func (k ErrorKind) PublicMessage() string {
	if m, ok := publicMessages[k]; ok {
		return m
	}
	return publicMessages[KindInternal]
}

type ShieldError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ShieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ShieldError) Unwrap() error {
	return e.Err
}

func NewShieldError(kind ErrorKind, message string, err error) error {
	return &ShieldError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal when err is not a ShieldError.
func KindOf(err error) ErrorKind {
	var se *ShieldError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var se *ShieldError
	return errors.As(err, &se) && se.Kind == kind
}
