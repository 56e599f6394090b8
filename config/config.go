package config

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"12222"`
	APIKey  string `env:"API_KEY,required"`
}

type DatabaseConfig struct {
	Driver          string `env:"DB_DRIVER" envDefault:"sqlite"`
	SqlitePath      string `env:"SQLITE_PATH" envDefault:"mailvault.db"`
	Host            string `env:"POSTGRES_HOST"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"POSTGRES_USER"`
	DBName          string `env:"POSTGRES_DB_NAME"`
	Password        string `env:"POSTGRES_PASSWORD"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"5"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

type BackupConfig struct {
	Root                 string `env:"BACKUP_ROOT" envDefault:"./backups"`
	StreamThresholdBytes int64  `env:"BACKUP_STREAM_THRESHOLD_BYTES" envDefault:"8388608"`
	RateLimitProfile     string `env:"BACKUP_RATE_LIMIT_PROFILE" envDefault:"balanced"`
	HistoryRetention     int    `env:"BACKUP_HISTORY_RETENTION" envDefault:"100"`
	SocksProxyURL        string `env:"BACKUP_SOCKS_PROXY_URL"`
}

type EventsConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL"`
	Exchange    string `env:"RABBITMQ_EXCHANGE" envDefault:"mailvault-events"`
}

type MirrorConfig struct {
	Enabled         bool   `env:"MIRROR_ENABLED" envDefault:"false"`
	Provider        string `env:"MIRROR_PROVIDER" envDefault:"r2"`
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"MIRROR_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"MIRROR_ACCESS_KEY_SECRET"`
	Region          string `env:"MIRROR_REGION" envDefault:"auto"`
	Bucket          string `env:"MIRROR_BUCKET" envDefault:"mailvault"`
}

type OAuthConfig struct {
	GoogleClientID        string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"MICROSOFT_OAUTH_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_OAUTH_CLIENT_SECRET"`
	CustomTokenURL        string `env:"OAUTH_CUSTOM_TOKEN_URL"`
	CustomClientID        string `env:"OAUTH_CUSTOM_CLIENT_ID"`
	CustomClientSecret    string `env:"OAUTH_CUSTOM_CLIENT_SECRET"`
}

type SecretsConfig struct {
	Backend string `env:"SECRETS_BACKEND" envDefault:"keyring"`
}
