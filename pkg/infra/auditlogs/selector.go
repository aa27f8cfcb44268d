package auditlogs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

// Selector writes a payload to the first sink that accepts it, trying the
// primary before each fallback in order.
type Selector struct {
	logger  *logrus.Logger
	timeout time.Duration
	sinks   []audit.Sink
	now     func() time.Time
}

func NewSelector(logger *logrus.Logger, timeout time.Duration, primary audit.Sink, fallbacks ...audit.Sink) *Selector {
	if timeout <= 0 {
		timeout = common.DefaultSinkTimeout
	}
	sinks := make([]audit.Sink, 0, len(fallbacks)+1)
	if primary != nil {
		sinks = append(sinks, primary)
	}
	for _, f := range fallbacks {
		if f != nil {
			sinks = append(sinks, f)
		}
	}
	return &Selector{
		logger:  logger,
		timeout: timeout,
		sinks:   sinks,
		now:     time.Now,
	}
}

func (s *Selector) Sinks() []audit.Sink {
	return s.sinks
}

// Write returns the name of the sink that accepted payload and when. The
// caller's cancellation is ignored so a disconnecting client never aborts a
// write already in flight.
func (s *Selector) Write(ctx context.Context, objectKey string, payload []byte) (string, time.Time, error) {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i, sink := range s.sinks {
		err := s.writeOne(ctx, sink, objectKey, payload)
		if err == nil {
			if i > 0 {
				s.logger.WithFields(logrus.Fields{
					"sink":       sink.Name(),
					"object_key": objectKey,
				}).Warn("audit record accepted by fallback sink")
			}
			return sink.Name(), s.now().UTC(), nil
		}
		s.logger.WithFields(logrus.Fields{
			"sink":       sink.Name(),
			"object_key": objectKey,
			"error":      err.Error(),
		}).Error("audit sink write failed")
		errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no audit sinks configured"))
	}
	return "", time.Time{}, domain.NewShieldError(domain.KindAuditUnavailable, "every audit sink failed", errors.Join(errs...))
}

func (s *Selector) writeOne(ctx context.Context, sink audit.Sink, objectKey string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- sink.Write(ctx, objectKey, payload)
	}()

	var err error
	outcome := OutcomeAccepted
	select {
	case err = <-done:
		if err != nil {
			outcome = OutcomeFailed
		}
	case <-ctx.Done():
		err = fmt.Errorf("sink write timed out after %s: %w", s.timeout, ctx.Err())
		outcome = OutcomeTimeout
	}

	prometheus.AuditWrites.WithLabelValues(sink.Name(), outcome).Inc()
	prometheus.AuditWriteLatency.WithLabelValues(sink.Name()).Observe(float64(time.Since(start).Milliseconds()))
	return err
}
