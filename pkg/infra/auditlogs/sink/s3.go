package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/NeuralTrust/EdgeShield/pkg/infra/breaker"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const S3SinkName = "s3"

// PutObjectAPI is the subset of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3ClientConfig struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

type S3Sink struct {
	client  PutObjectAPI
	bucket  string
	sse     types.ServerSideEncryption
	breaker breaker.CircuitBreaker
}

// NewS3Sink stores records as objects in bucket. sse is "AES256", "aws:kms"
// or "none".
func NewS3Sink(client PutObjectAPI, bucket, sse string, cb breaker.CircuitBreaker) *S3Sink {
	s := &S3Sink{
		client:  client,
		bucket:  bucket,
		breaker: cb,
	}
	switch sse {
	case "", string(types.ServerSideEncryptionAes256):
		s.sse = types.ServerSideEncryptionAes256
	case string(types.ServerSideEncryptionAwsKms):
		s.sse = types.ServerSideEncryptionAwsKms
	}
	return s
}

func (s *S3Sink) Name() string {
	return S3SinkName
}

func (s *S3Sink) Write(ctx context.Context, objectKey string, payload []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(payload))),
		IfNoneMatch:   aws.String("*"),
	}
	if s.sse != "" {
		input.ServerSideEncryption = s.sse
	}

	put := func() error {
		_, err := s.client.PutObject(ctx, input)
		if alreadyStored(err) {
			return nil
		}
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(put)
	} else {
		err = put()
	}
	if err != nil {
		return fmt.Errorf("failed to put audit object %s: %w", objectKey, err)
	}
	return nil
}

// alreadyStored reports a conditional-write conflict: an earlier attempt
// with the same key already landed.
func alreadyStored(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
