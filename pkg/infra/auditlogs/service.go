package auditlogs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service interface {
	// Append signs event and stores it. The returned receipt names the sink
	// that accepted the record.
	Append(ctx context.Context, event audit.Event) (audit.Receipt, error)
	// Record builds an event from params, stamped with the current time, and appends it.
	Record(ctx context.Context, params audit.EventParams) (audit.Receipt, error)
	Close() error
}

type Opts struct {
	ObjectPrefix string
	Limits       audit.Limits
	TimeProvider func() time.Time
	IDProvider   func() string
}

type service struct {
	selector     *Selector
	engine       *signature.Engine
	logger       *logrus.Logger
	prefix       string
	limits       audit.Limits
	timeProvider func() time.Time
	idProvider   func() string
}

func NewService(selector *Selector, engine *signature.Engine, logger *logrus.Logger, opts *Opts) Service {
	s := &service{
		selector:     selector,
		engine:       engine,
		logger:       logger,
		limits:       audit.DefaultLimits(),
		timeProvider: time.Now,
		idProvider:   uuid.NewString,
	}
	if opts != nil {
		s.prefix = opts.ObjectPrefix
		if opts.Limits != (audit.Limits{}) {
			s.limits = opts.Limits
		}
		if opts.TimeProvider != nil {
			s.timeProvider = opts.TimeProvider
		}
		if opts.IDProvider != nil {
			s.idProvider = opts.IDProvider
		}
	}
	return s
}

func (s *service) Record(ctx context.Context, params audit.EventParams) (audit.Receipt, error) {
	event, err := audit.NewEvent(s.idProvider(), params, s.timeProvider(), s.limits)
	if err != nil {
		return audit.Receipt{}, err
	}
	return s.Append(ctx, event)
}

func (s *service) Append(ctx context.Context, event audit.Event) (audit.Receipt, error) {
	eventBytes, err := signature.Canonicalize(event)
	if err != nil {
		return audit.Receipt{}, fmt.Errorf("encode audit event: %w", err)
	}
	sig, err := s.engine.Sign(eventBytes)
	if err != nil {
		return audit.Receipt{}, fmt.Errorf("sign audit event: %w", err)
	}

	payload, err := signature.Canonicalize(audit.SignedRecord{
		Event:     event,
		Algorithm: audit.SignatureAlgorithm,
		Signature: sig,
	})
	if err != nil {
		return audit.Receipt{}, fmt.Errorf("encode audit record: %w", err)
	}

	key := NewObjectKey(s.prefix, s.timeProvider())
	sinkName, acceptedAt, err := s.selector.Write(ctx, key, payload)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).WithError(err).Error("audit record could not be stored")
		return audit.Receipt{}, err
	}

	return audit.Receipt{
		EventID:    event.ID,
		SinkMode:   sinkName,
		Signature:  sig,
		AcceptedAt: acceptedAt,
		ObjectKey:  key,
	}, nil
}

func (s *service) Close() error {
	var errs []error
	for _, sink := range s.selector.Sinks() {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s sink: %w", sink.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// ParamsFromRequest fills the request-scoped fields of params from c.
func ParamsFromRequest(c *fiber.Ctx, params audit.EventParams) audit.EventParams {
	if params.CorrelationID == "" {
		if id, ok := c.Locals(string(common.CorrelationIDContextKey)).(string); ok {
			params.CorrelationID = id
		}
	}
	return params
}
