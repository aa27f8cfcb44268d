package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fastjson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const PostgresSinkName = "postgres"

// AuditRecord is a stored signed record. The payload column holds the exact
// bytes every other sink would have received.
type AuditRecord struct {
	ObjectKey string    `gorm:"column:object_key;primaryKey"`
	EventID   string    `gorm:"column:event_id"`
	EventType string    `gorm:"column:event_type"`
	Payload   []byte    `gorm:"column:payload"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (AuditRecord) TableName() string {
	return "audit_records"
}

type PostgresSink struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresSink(db *gorm.DB) *PostgresSink {
	return &PostgresSink{db: db, now: time.Now}
}

func (p *PostgresSink) Name() string {
	return PostgresSinkName
}

func (p *PostgresSink) Write(ctx context.Context, objectKey string, payload []byte) error {
	record := AuditRecord{
		ObjectKey: objectKey,
		EventID:   fastjson.GetString(payload, "event", "id"),
		EventType: fastjson.GetString(payload, "event", "type"),
		Payload:   payload,
		CreatedAt: p.now().UTC(),
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to insert audit record %s: %w", objectKey, err)
	}
	return nil
}
