package audit

import (
	"context"
	"time"
)

const SignatureAlgorithm = "hmac-sha256"

// SignedRecord is what every sink stores. The signature covers the canonical
// encoding of Event only.
type SignedRecord struct {
	Event     Event  `json:"event"`
	Algorithm string `json:"algorithm"`
	Signature string `json:"signature"`
}

// Receipt tells the caller where its record landed.
type Receipt struct {
	EventID    string    `json:"event_id"`
	SinkMode   string    `json:"sink_mode"`
	Signature  string    `json:"signature"`
	AcceptedAt time.Time `json:"accepted_at"`
	ObjectKey  string    `json:"object_key"`
}

type Sink interface {
	Name() string
	// Write stores payload under objectKey. Writing the same key twice must
	// not produce two records.
	Write(ctx context.Context, objectKey string, payload []byte) error
}
