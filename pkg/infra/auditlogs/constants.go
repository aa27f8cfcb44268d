package auditlogs

const (
	SinkS3       = "s3"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
	SinkMemory   = "memory"
)

const (
	OutcomeAccepted = "accepted"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
)

const objectKeyTimeLayout = "20060102T150405.000000000Z"
