package sink

import (
	"context"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/cache"
	"github.com/sirupsen/logrus"
)

const (
	MemorySinkName = "memory"

	defaultMemoryEntries = 10000
)

// MemorySink is the last resort: it logs every record and keeps it in a
// bounded map until an operator drains it or it expires.
type MemorySink struct {
	logger  *logrus.Logger
	records *cache.TTLMap[[]byte]
}

func NewMemorySink(logger *logrus.Logger, retention time.Duration, maxEntries int) *MemorySink {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	if retention <= 0 {
		retention = common.DefaultMemoryRetention
	}
	return &MemorySink{
		logger:  logger,
		records: cache.NewTTLMap[[]byte](retention, maxEntries),
	}
}

func (m *MemorySink) Name() string {
	return MemorySinkName
}

func (m *MemorySink) Write(_ context.Context, objectKey string, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.records.Set(objectKey, stored)

	m.logger.WithFields(logrus.Fields{
		"object_key": objectKey,
		"record":     string(stored),
	}).Warn("audit record retained in memory")
	return nil
}

func (m *MemorySink) Get(objectKey string) ([]byte, bool) {
	return m.records.Get(objectKey)
}

func (m *MemorySink) Len() int {
	return m.records.Len()
}

// Drain removes and returns every retained record keyed by object key.
func (m *MemorySink) Drain() map[string][]byte {
	return m.records.Drain()
}
