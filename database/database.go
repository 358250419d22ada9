package database

import (
	"fmt"

	"roadside-monitor/be/config"
	"roadside-monitor/be/models"
	"roadside-monitor/be/repository"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Initialize(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.Device{},
		&models.EnvironmentData{},
		&models.Image{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("Database initialized successfully",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))
	return db, nil
}

// OpenStore returns the Store selected by cfg.Driver.
func OpenStore(cfg config.DatabaseConfig, log *zap.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	case "", "postgres":
		db, err := Initialize(cfg, log)
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
