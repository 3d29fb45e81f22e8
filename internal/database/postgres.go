package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jepsonc/immich-monitor/internal/config"
)

// Open establishes a fresh Postgres connection. The monitoring contract is
// one connection per aggregator invocation, so there is no pooling and no
// retry loop; callers must Close the returned handle when done.
func Open(logger *logrus.Logger, cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBSSLMode)

	log := logger.WithFields(logrus.Fields{
		"component": "database",
		"host":      cfg.DBHost,
		"database":  cfg.DBName,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.WithError(err).Error("Database connection failed")
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle unavailable: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	log.Debug("Database connection established")
	return db, nil
}

// Close releases the underlying connection opened by Open.
func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
