package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Store     StoreConfig
	AccountDB AccountDBConfig
	Relay     RelayConfig
	Storage   StorageConfig
	Image     ImageConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"60s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"capture-relay-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// StoreConfig holds the embedded SQLite store settings.
type StoreConfig struct {
	Path string `envconfig:"STORE_DB_PATH" default:"./data/captures.db"`
}

// AccountDBConfig holds the optional external MySQL account directory.
// When disabled, accounts come from the embedded store.
type AccountDBConfig struct {
	Enabled  bool   `envconfig:"ACCOUNT_DB_ENABLED" default:"false"`
	Host     string `envconfig:"ACCOUNT_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"ACCOUNT_DB_PORT" default:"3306"`
	Name     string `envconfig:"ACCOUNT_DB_NAME" default:"accounts"`
	User     string `envconfig:"ACCOUNT_DB_USER" default:"root"`
	Password string `envconfig:"ACCOUNT_DB_PASS" default:""`
}

// RelayConfig holds the Redis relay settings. When host is empty the
// relay falls back to in-process delivery.
type RelayConfig struct {
	RedisHost     string `envconfig:"REDIS_HOST" default:""`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// StorageConfig holds object storage settings. When bucket is empty
// objects are held in memory.
type StorageConfig struct {
	Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	Bucket       string `envconfig:"S3_BUCKET" default:""`
	AccessKey    string `envconfig:"S3_ACCESS_KEY" default:""`
	SecretKey    string `envconfig:"S3_SECRET_KEY" default:""`
	BaseEndpoint string `envconfig:"S3_ENDPOINT" default:""`
}

// ImageConfig holds recompression settings.
type ImageConfig struct {
	MaxDimension int `envconfig:"IMAGE_MAX_DIMENSION" default:"1920"`
	ByteBudget   int `envconfig:"IMAGE_BYTE_BUDGET" default:"512000"`
	Workers      int `envconfig:"IMAGE_WORKERS" default:"0"` // 0 = NumCPU
}

// RetentionConfig holds retention sweep settings.
type RetentionConfig struct {
	TTL           time.Duration `envconfig:"RETENTION_TTL" default:"24h"`
	SweepInterval time.Duration `envconfig:"RETENTION_SWEEP_INTERVAL" default:"1h"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (r *RelayConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", r.RedisHost, r.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *AccountDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
