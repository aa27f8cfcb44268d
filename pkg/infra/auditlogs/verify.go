package auditlogs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
)

var ErrRecordTampered = errors.New("audit record signature does not match")

// VerifyRecord checks a stored record against secret. The signature is
// recomputed over the canonical form of the stored event bytes, so the record
// need not be byte-for-byte canonical on disk.
func VerifyRecord(raw []byte, secret string) (audit.SignedRecord, error) {
	var envelope struct {
		Event     json.RawMessage `json:"event"`
		Algorithm string          `json:"algorithm"`
		Signature string          `json:"signature"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return audit.SignedRecord{}, fmt.Errorf("decode audit record: %w", err)
	}
	if envelope.Algorithm != audit.SignatureAlgorithm {
		return audit.SignedRecord{}, fmt.Errorf("unsupported signature algorithm %q", envelope.Algorithm)
	}

	var record audit.SignedRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return audit.SignedRecord{}, fmt.Errorf("decode audit record: %w", err)
	}

	eventBytes, err := signature.Canonicalize(envelope.Event)
	if err != nil {
		return record, err
	}
	if !signature.Verify(eventBytes, envelope.Signature, secret) {
		return record, ErrRecordTampered
	}
	return record, nil
}
