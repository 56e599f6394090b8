package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
)

type Repositories struct {
	AccountRepository   interfaces.AccountRepository
	BackupRunRepository interfaces.BackupRunRepository
	SettingsRepository  interfaces.SettingsRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:   NewAccountRepository(db),
		BackupRunRepository: NewBackupRunRepository(db),
		SettingsRepository:  NewSettingsRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// keep the pool small while schema changes run
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Account{},
		&models.BackupRun{},
		&models.AppSetting{},
	)

	if dbConfig.Driver == "postgres" {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
		sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)
	}

	return err
}
