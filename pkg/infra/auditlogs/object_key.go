package auditlogs

import (
	"time"

	"github.com/google/uuid"
)

// ObjectKey names a stored record: {prefix}{UTC timestamp}-{random}.json.
func ObjectKey(prefix string, at time.Time, random string) string {
	return prefix + at.UTC().Format(objectKeyTimeLayout) + "-" + random + ".json"
}

func NewObjectKey(prefix string, at time.Time) string {
	return ObjectKey(prefix, at, uuid.NewString())
}
