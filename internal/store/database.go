package store

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// Supported database drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds database connection settings
type Config struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	LogQueries   bool          `mapstructure:"log_queries"`
}

// DefaultConfig returns a local SQLite configuration
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverSQLite,
		DSN:        "reconciler.db",
		MaxRetries: 5,
		RetryDelay: 5 * time.Second,
	}
}

// Validate checks the database configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "database.driver", c.Driver, nil).
			WithSuggestion("use 'mysql' or 'sqlite'")
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database.dsn", "", nil)
	}
	return nil
}

// Open connects to the configured database, retrying while it comes up.
func Open(config *Config, log logger.Logger) (*gorm.DB, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrGlobal(log).WithComponent("database")

	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if config.LogQueries {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var db *gorm.DB
	var err error
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(dialector(config), gormConfig)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("Failed to connect to database (try %d/%d)", i+1, attempts)
		if i < attempts-1 {
			time.Sleep(config.RetryDelay)
		}
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "connect", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "connect", err)
	}
	switch {
	case config.Driver == DriverSQLite:
		// SQLite allows one writer; a single connection keeps transactions serialized.
		sqlDB.SetMaxOpenConns(1)
	case config.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}

	log.WithField("driver", config.Driver).Info("Connected to database")
	return db, nil
}

func dialector(config *Config) gorm.Dialector {
	if config.Driver == DriverMySQL {
		return mysql.New(mysql.Config{
			DSN:                       config.DSN,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		})
	}
	return sqlite.Open(config.DSN)
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.BillingRecord{},
		&models.Payment{},
		&models.NotificationIntent{},
	); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "migrate", fmt.Errorf("auto migrate: %w", err))
	}
	return nil
}
