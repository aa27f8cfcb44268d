package auditlogs

import (
	"context"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const SinkDisabled = "disabled"

type disabledService struct {
	logger *logrus.Logger
}

// NewDisabledService is used when audit.enabled is false. Events are
// validated and acknowledged but nothing is signed or stored.
func NewDisabledService(logger *logrus.Logger) Service {
	return &disabledService{logger: logger}
}

func (d *disabledService) Record(ctx context.Context, params audit.EventParams) (audit.Receipt, error) {
	event, err := audit.NewEvent(uuid.NewString(), params, time.Now(), audit.DefaultLimits())
	if err != nil {
		return audit.Receipt{}, err
	}
	return d.Append(ctx, event)
}

func (d *disabledService) Append(_ context.Context, event audit.Event) (audit.Receipt, error) {
	d.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}).Debug("audit disabled, event not stored")
	return audit.Receipt{
		EventID:    event.ID,
		SinkMode:   SinkDisabled,
		AcceptedAt: time.Now().UTC(),
	}, nil
}

func (d *disabledService) Close() error {
	return nil
}
