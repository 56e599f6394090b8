package services

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/metrics"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/services/accounts"
	"github.com/customeros/mailvault/services/backup"
	"github.com/customeros/mailvault/services/events"
	"github.com/customeros/mailvault/services/filestore"
	"github.com/customeros/mailvault/services/secrets"
	"github.com/customeros/mailvault/services/storage"
	"github.com/customeros/mailvault/services/tokens"
)

type Services struct {
	SecretStore     interfaces.SecretStore
	TokenProvider   interfaces.TokenProvider
	MessageStore    interfaces.MessageStore
	EventsPublisher interfaces.EventPublisher
	MirrorStorage   interfaces.StorageService
	AccountsService interfaces.AccountsService
	BackupService   interfaces.BackupService
	Recorder        metrics.Recorder
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	secretStore := secrets.NewSecretStore(cfg.SecretsConfig)
	tokenProvider := tokens.NewTokenProvider(cfg.OAuthConfig, secretStore, log)
	messageStore := filestore.NewStore(cfg.BackupConfig.Root, log)
	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)

	// events
	var publisher interfaces.EventPublisher
	if cfg.EventsConfig != nil && cfg.EventsConfig.RabbitMQURL != "" {
		rabbitPublisher, err := events.NewRabbitMQPublisher(cfg.EventsConfig, log, nil)
		if err != nil {
			return nil, err
		}
		publisher = rabbitPublisher
	}

	// off-site mirror, nil unless enabled
	mirror, err := storage.NewMirrorStorage(cfg.MirrorConfig)
	if err != nil {
		return nil, err
	}

	backupService := backup.NewService(cfg, log, repos, messageStore, secretStore, tokenProvider, publisher, mirror, recorder)
	accountsService := accounts.NewAccountsService(cfg, log, repos, secretStore, tokenProvider, recorder)

	services := Services{
		SecretStore:     secretStore,
		TokenProvider:   tokenProvider,
		MessageStore:    messageStore,
		EventsPublisher: publisher,
		MirrorStorage:   mirror,
		AccountsService: accountsService,
		BackupService:   backupService,
		Recorder:        recorder,
	}

	return &services, nil
}

// Close releases external connections held by the aggregate.
func (s *Services) Close() error {
	if s.EventsPublisher != nil {
		return s.EventsPublisher.Close()
	}
	return nil
}
