package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

type Migration struct {
	ID   string
	Name string
	Up   func(tx *gorm.DB) error
	Down func(tx *gorm.DB) error
}

// schemaVersion records one applied migration.
type schemaVersion struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	AppliedAt time.Time
}

func (schemaVersion) TableName() string {
	return "shield_schema_versions"
}

var registry = struct {
	sync.Mutex
	byID map[string]Migration
}{byID: make(map[string]Migration)}

// RegisterMigration is called from init functions of the migrations package.
// IDs sort lexically into apply order.
func RegisterMigration(m Migration) {
	registry.Lock()
	defer registry.Unlock()
	if _, exists := registry.byID[m.ID]; exists {
		panic(fmt.Sprintf("migration %s registered twice", m.ID))
	}
	registry.byID[m.ID] = m
}

func unregisterMigration(id string) {
	registry.Lock()
	defer registry.Unlock()
	delete(registry.byID, id)
}

// pending returns the registered migrations missing from applied, in order.
func pending(applied map[string]struct{}) []Migration {
	registry.Lock()
	defer registry.Unlock()
	out := make([]Migration, 0, len(registry.byID))
	for id, m := range registry.byID {
		if _, done := applied[id]; !done {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type MigrationsManager struct {
	db *gorm.DB
}

func NewMigrationsManager(db *gorm.DB) *MigrationsManager {
	return &MigrationsManager{db: db}
}

// ApplyPending runs every migration not yet recorded. Each migration and its
// version row commit together.
func (m *MigrationsManager) ApplyPending() error {
	if err := m.db.AutoMigrate(&schemaVersion{}); err != nil {
		return fmt.Errorf("ensure schema versions table: %w", err)
	}

	var rows []schemaVersion
	if err := m.db.Select("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	applied := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		applied[r.ID] = struct{}{}
	}

	for _, mig := range pending(applied) {
		if mig.Up == nil {
			return fmt.Errorf("migration %s has no Up function", mig.ID)
		}
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&schemaVersion{ID: mig.ID, Name: mig.Name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s (%s): %w", mig.ID, mig.Name, err)
		}
	}
	return nil
}
