package migrations

import (
	"github.com/NeuralTrust/EdgeShield/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20250301_create_audit_records",
		Name: "Create audit_records table for signed audit records",

		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS audit_records (
					object_key  TEXT PRIMARY KEY,
					event_id    TEXT NOT NULL,
					event_type  TEXT NOT NULL,
					payload     BYTEA NOT NULL,
					created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_audit_records_event_id
				ON audit_records (event_id);
			`).Error
		},

		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS audit_records;`).Error
		},
	})
}
