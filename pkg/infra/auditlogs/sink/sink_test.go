package sink_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs/sink"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/breaker"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutObject struct {
	mock.Mock
}

func (m *mockPutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestS3Sink_Write(t *testing.T) {
	client := new(mockPutObject)
	payload := []byte(`{"event":{"id":"e1"}}`)

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return *in.Bucket == "audit-bucket" &&
			*in.Key == "audit/k.json" &&
			*in.IfNoneMatch == "*" &&
			*in.ContentLength == int64(len(payload)) &&
			in.ServerSideEncryption == types.ServerSideEncryptionAes256 &&
			string(body) == string(payload)
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	s := sink.NewS3Sink(client, "audit-bucket", "AES256", nil)
	assert.Equal(t, "s3", s.Name())
	require.NoError(t, s.Write(context.Background(), "audit/k.json", payload))
	client.AssertExpectations(t)
}

func TestS3Sink_Write_ExistingObjectCountsAsAccepted(t *testing.T) {
	client := new(mockPutObject)
	client.On("PutObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "exists"}).Once()

	s := sink.NewS3Sink(client, "audit-bucket", "", nil)
	assert.NoError(t, s.Write(context.Background(), "audit/k.json", []byte("{}")))
}

func TestS3Sink_Write_Failure(t *testing.T) {
	client := new(mockPutObject)
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	cb := breaker.NewCircuitBreaker("s3-test", time.Minute, 2)
	s := sink.NewS3Sink(client, "audit-bucket", "none", cb)

	for i := 0; i < 2; i++ {
		assert.Error(t, s.Write(context.Background(), "audit/k.json", []byte("{}")))
	}
	err := s.Write(context.Background(), "audit/k.json", []byte("{}"))
	require.Error(t, err)
	assert.True(t, breaker.IsOpen(err))
	client.AssertNumberOfCalls(t, "PutObject", 2)
}

func TestMemorySink(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := sink.NewMemorySink(logger, time.Hour, 2)
	assert.Equal(t, "memory", m.Name())

	payload := []byte(`{"a":1}`)
	require.NoError(t, m.Write(context.Background(), "k1", payload))
	payload[0] = 'X'

	got, ok := m.Get("k1")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, m.Write(context.Background(), "k2", []byte("2")))
	require.NoError(t, m.Write(context.Background(), "k3", []byte("3")))
	assert.Equal(t, 2, m.Len())

	drained := m.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, m.Len())
}

func TestNewKafkaSink_RequiresSettings(t *testing.T) {
	_, err := sink.NewKafkaSink(sink.KafkaConfig{Host: "localhost"})
	assert.Error(t, err)
}

func TestAuditRecord_TableName(t *testing.T) {
	assert.Equal(t, "audit_records", sink.AuditRecord{}.TableName())
}
