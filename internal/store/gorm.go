package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormJournal stores events in a SQL database through gorm.
type GormJournal struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the session_events table.
func OpenPostgres(dsn string) (*GormJournal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormJournal(db)
}

func NewGormJournal(db *gorm.DB) (*GormJournal, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrate session_events: %w", err)
	}
	return &GormJournal{db: db}, nil
}

func (g *GormJournal) Append(ctx context.Context, e Event) error {
	if err := g.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (g *GormJournal) Events(ctx context.Context, code string) ([]Event, error) {
	var out []Event
	err := g.db.WithContext(ctx).
		Where("session_code = ?", code).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", code, err)
	}
	return out, nil
}

func (g *GormJournal) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
