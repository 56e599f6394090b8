package handlers

import (
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/cron"
	"github.com/customeros/mailvault/services"
)

type APIHandlers struct {
	Accounts *AccountsHandler
	Backups  *BackupsHandler
	Schedule *ScheduleHandler
	Settings *SettingsHandler
}

func InitHandlers(s *services.Services, cronManager *cron.CronManager, settings interfaces.SettingsRepository) *APIHandlers {
	return &APIHandlers{
		Accounts: NewAccountsHandler(s.AccountsService),
		Backups:  NewBackupsHandler(s.BackupService),
		Schedule: NewScheduleHandler(cronManager),
		Settings: NewSettingsHandler(settings),
	}
}
