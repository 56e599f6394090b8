package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	BackupConfig   *BackupConfig
	EventsConfig   *EventsConfig
	MirrorConfig   *MirrorConfig
	OAuthConfig    *OAuthConfig
	SecretsConfig  *SecretsConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		BackupConfig:   &BackupConfig{},
		EventsConfig:   &EventsConfig{},
		MirrorConfig:   &MirrorConfig{},
		OAuthConfig:    &OAuthConfig{},
		SecretsConfig:  &SecretsConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailvault config: %v", err)
	}

	return config, nil
}
