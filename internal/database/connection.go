// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return DB, nil
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

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// RunMigrations prepares a Postgres database.
func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	if err := Migrate(db); err != nil {
		return err
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// Migrate creates the schema with dialect-neutral DDL only, so it also runs
// against the SQLite databases used in tests.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.PlanningApplication{},
		&models.ValidationRequest{},
		&models.Document{},
		&models.Condition{},
		&models.HeadsOfTerm{},
		&models.HeadsOfTermTerm{},
		&models.ConsiderationSet{},
		&models.PolicyArea{},
		&models.PermittedDevelopmentRight{},
		&models.LocalPolicy{},
		&models.OwnershipCertificate{},
		&models.ImmunityDetail{},
		&models.Review{},
		&models.AuditLog{},
		&models.Notification{},
		&models.FeePayment{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return createIndexes(db)
}

func createIndexes(db *gorm.DB) error {
	constraints := []string{
		// At most one live request of an exclusive type per case and scope
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_validation_requests_live_exclusive
			ON validation_requests(planning_application_id, type, scope_key)
			WHERE is_exclusive AND state IN ('pending', 'open') AND deleted_at IS NULL`,

		// One current review, and at most one open review, per owner
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reviews_current_owner
			ON reviews(owner_type, owner_id) WHERE is_current AND deleted_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reviews_open_owner
			ON reviews(owner_type, owner_id) WHERE reviewed_at IS NULL AND deleted_at IS NULL`,
	}

	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create constraint index: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_validation_requests_case_state ON validation_requests(planning_application_id, state)",
		"CREATE INDEX IF NOT EXISTS idx_validation_requests_type_state ON validation_requests(type, state)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_case_created ON audit_logs(planning_application_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status, created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// SeedInitialData creates the first administrator when the users table is empty.
func SeedInitialData(db *gorm.DB, email, password string) error {
	logrus.Info("Seeding initial data...")

	var adminCount int64
	db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount)

	if adminCount == 0 {
		admin := &models.User{
			Name:   "System Administrator",
			Email:  email,
			Role:   models.UserRoleAdmin,
			Status: models.UserStatusActive,
		}

		if err := admin.SetPassword(password); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		logrus.WithField("email", email).Info("Default admin user created successfully")
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
