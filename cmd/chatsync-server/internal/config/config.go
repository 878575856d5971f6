// Package config provides configuration management for the chatsync server.
//
// Settings are layered: built-in defaults, then an optional YAML file named by
// CHATSYNC_CONFIG, then environment variables. A .env file in the working
// directory is loaded into the environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/coregx/chatsync"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConnectTimeoutSeconds bounds SQL connection establishment through the DSN.
const ConnectTimeoutSeconds = 5

// Config holds all configuration for the chatsync server.
type Config struct {
	Env      string         `yaml:"env"`
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig holds store connection configuration.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // memory, sqlite3, postgres, mysql, mongo
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Database      string `yaml:"name"`
	Prefix        string `yaml:"prefix"` // Table prefix (default: "chat_")
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// IngestConfig holds payload ingestion configuration.
type IngestConfig struct {
	PayloadDir string `yaml:"payload_dir"`
	OnStart    bool   `yaml:"on_start"`
	Schedule   string `yaml:"schedule"` // cron spec; empty disables re-ingestion
}

// WebhookConfig holds the live webhook receiver configuration.
type WebhookConfig struct {
	VerifyToken string `yaml:"verify_token"`
	AppSecret   string `yaml:"app_secret"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:        "sqlite3",
			Host:          "localhost",
			Database:      "chatsync.db",
			Prefix:        chatsync.DefaultTablePrefix,
			MongoDatabase: "whatsapp",
		},
		Ingest: IngestConfig{
			PayloadDir: "messages",
			OnStart:    true,
		},
	}
}

// Load loads configuration from .env, the optional YAML file and the environment.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CHATSYNC_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Env = getEnv("APP_ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Database.Driver = strings.ToLower(getEnv("DB_DRIVER", c.Database.Driver))
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.Prefix = getEnv("DB_PREFIX", c.Database.Prefix)
	c.Database.MongoURI = getEnv("MONGO_URI", c.Database.MongoURI)
	c.Database.MongoDatabase = getEnv("MONGO_DATABASE", c.Database.MongoDatabase)

	c.Ingest.PayloadDir = getEnv("PAYLOAD_DIR", c.Ingest.PayloadDir)
	c.Ingest.OnStart = getEnvBool("INGEST_ON_START", c.Ingest.OnStart)
	c.Ingest.Schedule = getEnv("REINGEST_SCHEDULE", c.Ingest.Schedule)

	c.Webhook.VerifyToken = getEnv("WEBHOOK_VERIFY_TOKEN", c.Webhook.VerifyToken)
	c.Webhook.AppSecret = getEnv("WEBHOOK_APP_SECRET", c.Webhook.AppSecret)
}

// Validate checks the configuration for the selected driver.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite3":
	case "postgres", "mysql":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD environment variable is required for %s", c.Database.Driver)
		}
		if c.Database.Port == 0 {
			c.Database.Port = defaultPort(c.Database.Driver)
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable is required for mongo")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (use memory, sqlite3, postgres, mysql or mongo)", c.Database.Driver)
	}

	if c.Database.IsSQL() {
		if c.Database.Prefix == "" {
			c.Database.Prefix = chatsync.DefaultTablePrefix
		}
		if err := chatsync.ValidateTablePrefix(c.Database.Prefix); err != nil {
			return fmt.Errorf("invalid DB_PREFIX: %w", err)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsSQL reports whether the driver is served by the SQL adapters.
func (c *DatabaseConfig) IsSQL() bool {
	switch c.Driver {
	case "sqlite3", "postgres", "mysql":
		return true
	default:
		return false
	}
}

// HasSharedFeed reports whether the store notifies every process of changes.
// sqlite3, mysql and memory only observe writes made by the same process.
func (c *DatabaseConfig) HasSharedFeed() bool {
	return c.Driver == "postgres" || c.Driver == "mongo"
}

// GetDSN returns the database connection string based on driver.
// Network DSNs carry a connect timeout of ConnectTimeoutSeconds.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=%ds",
			c.User, c.Password, c.Host, c.Port, c.Database, ConnectTimeoutSeconds)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=%d",
			c.Host, c.Port, c.User, c.Password, c.Database, ConnectTimeoutSeconds)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	case "mongo":
		return c.MongoURI
	default:
		return ""
	}
}

func defaultPort(driver string) int {
	if driver == "postgres" {
		return 5432
	}
	return 3306
}

func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
