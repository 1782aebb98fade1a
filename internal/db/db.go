package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aris-project/aris/internal/chat"
	"github.com/aris-project/aris/internal/models"
	"github.com/aris-project/aris/internal/vectordb"
)

// Connect opens the relational store and migrates the schema.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate creates or updates every relational table. Kept separate so tests
// can run it against an in-memory database.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.ApiKey{},
		&models.LLMConfig{},
		&models.EmbeddingConfig{},
		&chat.Session{},
		&chat.Message{},
		&vectordb.VectorDatabase{},
		&vectordb.File{},
		&vectordb.URL{},
		&vectordb.IngestJob{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
