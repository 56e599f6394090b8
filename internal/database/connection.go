package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/mailvault/config"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

func NewConnection(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	if dbConfig == nil {
		return nil, fmt.Errorf("database config is nil")
	}

	dialector, err := buildDialector(dbConfig)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
	})
	if err != nil {
		return nil, err
	}

	// Pool settings only matter for the server-grade driver; sqlite is a
	// single file and must stay on one writer connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if dbConfig.Driver == DriverSqlite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
		sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)
	}

	return db, nil
}

func buildDialector(dbConfig *config.DatabaseConfig) (gorm.Dialector, error) {
	switch dbConfig.Driver {
	case "", DriverSqlite:
		if dbConfig.SqlitePath == "" {
			return nil, fmt.Errorf("sqlite path is empty")
		}
		if dir := filepath.Dir(dbConfig.SqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn := dbConfig.SqlitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		return sqlite.Open(dsn), nil

	case DriverPostgres:
		if err := validatePostgresConfig(dbConfig); err != nil {
			return nil, err
		}
		portInt, err := strconv.Atoi(dbConfig.Port)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %w", err)
		}
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
		)
		return postgres.Open(dsn), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbConfig.Driver)
	}
}

func validatePostgresConfig(config *config.DatabaseConfig) error {
	switch {
	case config.Host == "":
		return fmt.Errorf("database host config is empty")
	case config.Port == "":
		return fmt.Errorf("database port config is empty")
	case config.User == "":
		return fmt.Errorf("database user config is empty")
	case config.Password == "":
		return fmt.Errorf("database password config is empty")
	case config.DBName == "":
		return fmt.Errorf("database name config is empty")
	case config.SSLMode == "":
		return fmt.Errorf("database SSLMode config is empty")
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "INFO":
		return logger.Info
	case "WARN":
		return logger.Warn
	case "ERROR":
		return logger.Error
	default:
		return logger.Silent
	}
}
