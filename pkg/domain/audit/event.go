package audit

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NeuralTrust/EdgeShield/pkg/domain"
)

const (
	EventTypeWebhookReceived = "webhook.received"
	EventTypeActionRecorded  = "action.recorded"
	EventTypeProxyForwarded  = "proxy.forwarded"
)

var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_.\-]{0,63}$`)

// Event is a single audited action. Build it with NewEvent and treat it as a
// value; the emitter never mutates what it receives.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	ActorID       string    `json:"actor_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Outcome       int       `json:"outcome,omitempty"`
	Metadata      Metadata  `json:"metadata,omitempty"`
}

type EventParams struct {
	Type          string
	ActorID       string
	CorrelationID string
	Outcome       int
	Metadata      map[string]interface{}
}

// NewEvent validates params and stamps the event with the server clock.
func NewEvent(id string, params EventParams, now time.Time, limits Limits) (Event, error) {
	if strings.TrimSpace(id) == "" {
		return Event{}, domain.NewShieldError(domain.KindSchemaInvalid, "audit event id is required", nil)
	}
	if !eventTypePattern.MatchString(params.Type) {
		return Event{}, domain.NewShieldError(domain.KindSchemaInvalid, "invalid audit event type", nil)
	}
	if utf8.RuneCountInString(params.ActorID) > DefaultMaxActorIDLength || !utf8.ValidString(params.ActorID) {
		return Event{}, domain.NewShieldError(domain.KindSchemaInvalid, "invalid actor id", nil)
	}
	if params.Outcome < 0 || params.Outcome > 999 {
		return Event{}, domain.NewShieldError(domain.KindSchemaInvalid, "invalid outcome", nil)
	}
	md, err := NewMetadata(params.Metadata, limits)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            id,
		Type:          params.Type,
		Timestamp:     now.UTC(),
		ActorID:       params.ActorID,
		CorrelationID: params.CorrelationID,
		Outcome:       params.Outcome,
		Metadata:      md,
	}, nil
}
