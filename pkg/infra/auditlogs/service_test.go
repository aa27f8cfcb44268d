package auditlogs_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs/sink"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "audit-secret"

type mockSink struct {
	mock.Mock
	name string
}

func (m *mockSink) Name() string {
	return m.name
}

func (m *mockSink) Write(ctx context.Context, objectKey string, payload []byte) error {
	args := m.Called(ctx, objectKey, payload)
	return args.Error(0)
}

// recordingSink remembers every payload and the context it was handed.
type recordingSink struct {
	mu       sync.Mutex
	name     string
	err      error
	block    bool
	payloads [][]byte
	keys     []string
	ctxErrs  []error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(ctx context.Context, objectKey string, payload []byte) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
	r.keys = append(r.keys, objectKey)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var fixedNow = time.Date(2025, 2, 28, 8, 16, 5, 123000000, time.UTC)

func newService(selector *auditlogs.Selector) auditlogs.Service {
	return auditlogs.NewService(selector, signature.NewEngine(testSecret), quietLogger(), &auditlogs.Opts{
		ObjectPrefix: "audit/",
		TimeProvider: func() time.Time { return fixedNow },
		IDProvider:   func() string { return "evt-1" },
	})
}

func testEvent(t *testing.T) audit.Event {
	e, err := audit.NewEvent("evt-1", audit.EventParams{
		Type:     audit.EventTypeActionRecorded,
		ActorID:  "user-42",
		Outcome:  200,
		Metadata: map[string]interface{}{"path": "/v1/orders", "retries": 2},
	}, fixedNow, audit.DefaultLimits())
	require.NoError(t, err)
	return e
}

func TestService_Append_PrimaryAccepts(t *testing.T) {
	primary := &recordingSink{name: "s3"}
	fallback := &mockSink{name: "memory"}
	svc := newService(auditlogs.NewSelector(quietLogger(), time.Second, primary, fallback))

	receipt, err := svc.Append(context.Background(), testEvent(t))
	require.NoError(t, err)

	assert.Equal(t, "s3", receipt.SinkMode)
	assert.Equal(t, "evt-1", receipt.EventID)
	assert.False(t, receipt.AcceptedAt.IsZero())
	assert.True(t, strings.HasPrefix(receipt.ObjectKey, "audit/20250228T081605.123000000Z-"))
	assert.True(t, strings.HasSuffix(receipt.ObjectKey, ".json"))
	require.Len(t, primary.payloads, 1)
	assert.Equal(t, receipt.ObjectKey, primary.keys[0])
	fallback.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)

	record, err := auditlogs.VerifyRecord(primary.payloads[0], testSecret)
	require.NoError(t, err)
	assert.Equal(t, receipt.Signature, record.Signature)
	assert.Equal(t, audit.SignatureAlgorithm, record.Algorithm)

	eventBytes, err := signature.Canonicalize(testEvent(t))
	require.NoError(t, err)
	assert.True(t, signature.Verify(eventBytes, receipt.Signature, testSecret))
}

func TestService_Append_FallbackGetsIdenticalBytes(t *testing.T) {
	reference := &recordingSink{name: "s3"}
	_, err := newService(auditlogs.NewSelector(quietLogger(), time.Second, reference)).
		Append(context.Background(), testEvent(t))
	require.NoError(t, err)

	primary := &recordingSink{name: "s3", err: errors.New("s3 down")}
	memory := sink.NewMemorySink(quietLogger(), time.Hour, 10)
	svc := newService(auditlogs.NewSelector(quietLogger(), time.Second, primary, memory))

	receipt, err := svc.Append(context.Background(), testEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "memory", receipt.SinkMode)

	stored, ok := memory.Get(receipt.ObjectKey)
	require.True(t, ok)
	assert.Equal(t, primary.payloads[0], stored)
	assert.Equal(t, reference.payloads[0], stored)
	assert.Equal(t, primary.keys[0], receipt.ObjectKey)
}

func TestService_Append_AllSinksFail(t *testing.T) {
	primary := &mockSink{name: "s3"}
	primary.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("s3 down")).Once()
	fallback := &mockSink{name: "kafka"}
	fallback.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	svc := newService(auditlogs.NewSelector(quietLogger(), time.Second, primary, fallback))

	receipt, err := svc.Append(context.Background(), testEvent(t))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuditUnavailable))
	assert.Equal(t, audit.Receipt{}, receipt)
	assert.Contains(t, err.Error(), "broker down")
	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}

func TestService_Append_SurvivesCallerCancellation(t *testing.T) {
	primary := &recordingSink{name: "s3"}
	svc := newService(auditlogs.NewSelector(quietLogger(), time.Second, primary))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	receipt, err := svc.Append(ctx, testEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "s3", receipt.SinkMode)
	require.Len(t, primary.ctxErrs, 1)
	assert.NoError(t, primary.ctxErrs[0])
}

func TestService_Append_SlowPrimaryFallsBack(t *testing.T) {
	primary := &recordingSink{name: "s3", block: true}
	fallback := &recordingSink{name: "memory"}
	svc := newService(auditlogs.NewSelector(quietLogger(), 20*time.Millisecond, primary, fallback))

	receipt, err := svc.Append(context.Background(), testEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "memory", receipt.SinkMode)
}

func TestService_Record_RejectsInvalidEvent(t *testing.T) {
	primary := &mockSink{name: "s3"}
	svc := newService(auditlogs.NewSelector(quietLogger(), time.Second, primary))

	_, err := svc.Record(context.Background(), audit.EventParams{Type: "Not A Type"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindSchemaInvalid))
	primary.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Append_MissingSecret(t *testing.T) {
	primary := &mockSink{name: "s3"}
	svc := auditlogs.NewService(auditlogs.NewSelector(quietLogger(), time.Second, primary), signature.NewEngine(""), quietLogger(), nil)

	_, err := svc.Append(context.Background(), testEvent(t))
	assert.ErrorIs(t, err, signature.ErrMissingSecret)
}

func TestVerifyRecord_DetectsTampering(t *testing.T) {
	primary := &recordingSink{name: "s3"}
	_, err := newService(auditlogs.NewSelector(quietLogger(), time.Second, primary)).
		Append(context.Background(), testEvent(t))
	require.NoError(t, err)

	tampered := strings.Replace(string(primary.payloads[0]), "user-42", "user-43", 1)
	_, err = auditlogs.VerifyRecord([]byte(tampered), testSecret)
	assert.ErrorIs(t, err, auditlogs.ErrRecordTampered)

	_, err = auditlogs.VerifyRecord(primary.payloads[0], "wrong")
	assert.ErrorIs(t, err, auditlogs.ErrRecordTampered)
}

func TestParamsFromRequest(t *testing.T) {
	app := fiber.New()
	var got audit.EventParams
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals(string(common.CorrelationIDContextKey), "req-7")
		got = auditlogs.ParamsFromRequest(c, audit.EventParams{Type: audit.EventTypeProxyForwarded})
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "req-7", got.CorrelationID)
}

func TestObjectKey(t *testing.T) {
	key := auditlogs.ObjectKey("audit/", fixedNow, "abc")
	assert.Equal(t, "audit/20250228T081605.123000000Z-abc.json", key)
}

func TestDisabledService(t *testing.T) {
	svc := auditlogs.NewDisabledService(logrus.New())

	receipt, err := svc.Record(context.Background(), audit.EventParams{Type: audit.EventTypeActionRecorded})
	require.NoError(t, err)
	assert.Equal(t, auditlogs.SinkDisabled, receipt.SinkMode)
	assert.Empty(t, receipt.Signature)
	assert.NotEmpty(t, receipt.EventID)

	_, err = svc.Record(context.Background(), audit.EventParams{Type: "not valid"})
	assert.Error(t, err)
	assert.NoError(t, svc.Close())
}
