package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every server-side setting, grouped by concern.
type Config struct {
	ServerPort int

	// PortalBaseURL is the public address of the portal; recovery links in
	// reset mails point back at it.
	PortalBaseURL string

	// APIKey, when set, is required from clients via the X-API-Key header.
	APIKey string

	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	MQ       MQConfig
	Mail     MailConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	// JWTSecret signs session tokens (HS256). The server runs degraded
	// when it is absent.
	JWTSecret string

	// TokenTTL is the lifetime of a full session token.
	TokenTTL time.Duration

	// RecoveryTokenTTL bounds both the emailed reset token and the
	// recovery-scoped session exchanged from it.
	RecoveryTokenTTL time.Duration

	// RequireEmailConfirmation makes register return no session; the user
	// must confirm their address before logging in.
	RequireEmailConfirmation bool
}

// StorageConfig selects the export artifact backend: "minio", "gcs" or ""
// (artifact uploads disabled).
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

// MQConfig selects the reset-mail queue backend: "rabbitmq", "pubsub" or ""
// (reset mails disabled).
type MQConfig struct {
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type MailConfig struct {
	// SMTPAddr is the host:port of the submission server.
	SMTPAddr string

	// From is the sender address on outgoing reset mails.
	From string
}

// ClientConfig holds the two values the portal client needs to reach the
// backend. Their absence is a detected, non-fatal condition: the client runs
// degraded with all backend operations disabled.
type ClientConfig struct {
	APIURL string
	APIKey string

	// TokenFile caches the session token between invocations.
	TokenFile string
}

// Configured reports whether both required values are present.
func (c ClientConfig) Configured() bool {
	return c.APIURL != "" && c.APIKey != ""
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		ServerPort:    getEnvInt("SERVER_PORT", 8080),
		PortalBaseURL: getEnv("PORTAL_BASE_URL", "http://localhost:8080"),
		APIKey:        getEnv("API_KEY", ""),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "aussieverify"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "aussieverify_db"),
			UseSSL:   getEnvBool("DB_USE_SSL", false),
		},
		Auth: AuthConfig{
			JWTSecret:                getEnv("JWT_SECRET", ""),
			TokenTTL:                 getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
			RecoveryTokenTTL:         getEnvDuration("AUTH_RECOVERY_TTL", 30*time.Minute),
			RequireEmailConfirmation: getEnvBool("AUTH_REQUIRE_EMAIL_CONFIRMATION", false),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", ""),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "aussieverify-exports"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				Bucket:          getEnv("GCS_BUCKET", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		MQ: MQConfig{
			Backend: getEnv("MQ_BACKEND", ""),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 1),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Mail: MailConfig{
			SMTPAddr: getEnv("SMTP_ADDR", ""),
			From:     getEnv("MAIL_FROM", "no-reply@aussieverify.example"),
		},
	}
}

// LoadClientConfig reads the portal client settings. Missing values are not
// an error here; callers check Configured and degrade.
func LoadClientConfig() ClientConfig {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	tokenFile := getEnv("AUSSIEVERIFY_TOKEN_FILE", "")
	if tokenFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			tokenFile = home + "/.aussieverify-session"
		}
	}

	return ClientConfig{
		APIURL:    getEnv("AUSSIEVERIFY_API_URL", ""),
		APIKey:    getEnv("AUSSIEVERIFY_API_KEY", ""),
		TokenFile: tokenFile,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		return valueStr == "1" || valueStr == "true" || valueStr == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
