// Package config loads server settings from the environment, optionally
// layered over a TOML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Duration is a time.Duration that decodes from TOML strings such as "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	SlackUserToken     string `toml:"slack_user_token"`     // SLACK_USER_TOKEN (required)
	SlackBotToken      string `toml:"slack_bot_token"`      // SLACK_BOT_TOKEN (required)
	SlackSigningSecret string `toml:"slack_signing_secret"` // SLACK_SIGNING_SECRET (required)
	SlackClientID      string `toml:"slack_client_id"`      // SLACK_CLIENT_ID (OAuth install)
	SlackClientSecret  string `toml:"slack_client_secret"`  // SLACK_CLIENT_SECRET (OAuth install)
	AuthChannel        string `toml:"auth_channel"`         // AUTH_CHANNEL (optional, empty = everyone authorized)

	HTTPAddr  string `toml:"http_addr"`  // CHANBOT_HTTP_ADDR (default ":8080")
	GRPCAddr  string `toml:"grpc_addr"`  // CHANBOT_GRPC_ADDR (default ":9090", "-" disables)
	AuthToken string `toml:"auth_token"` // CHANBOT_AUTH_TOKEN (optional, empty = admin auth disabled)
	NATSURL   string `toml:"nats_url"`   // CHANBOT_NATS_URL (optional, empty = no events)

	Store         string `toml:"store"`            // CHANBOT_STORE (file | postgres | mongo, default file)
	DBPath        string `toml:"db_path"`          // CHANBOT_DB_PATH (default "db.json")
	DatabaseURL   string `toml:"database_url"`     // DATABASE_URL (postgres)
	MongoURI      string `toml:"mongodb_uri"`      // MONGODB_URI (mongo)
	MongoDatabase string `toml:"mongodb_database"` // MONGODB_DATABASE (default "chanbot")

	SweepSchedule     string `toml:"sweep_schedule"`      // CHANBOT_SWEEP_SCHEDULE (cron with seconds, default "0 0 0 * * *")
	DefaultExpireDays int    `toml:"default_expire_days"` // CHANBOT_DEFAULT_EXPIRE_DAYS (default 14)
	LeaveAfterCreate  bool   `toml:"leave_after_create"`  // CHANBOT_LEAVE_AFTER_CREATE (default true)

	// Backup settings
	BackupInterval   Duration `toml:"backup_interval"`    // CHANBOT_BACKUP_INTERVAL (default 0 = disabled)
	BackupS3Bucket   string   `toml:"backup_s3_bucket"`   // CHANBOT_BACKUP_S3_BUCKET (enables S3 when set)
	BackupS3Endpoint string   `toml:"backup_s3_endpoint"` // CHANBOT_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string   `toml:"backup_s3_region"`   // CHANBOT_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Key      string   `toml:"backup_s3_key"`      // CHANBOT_BACKUP_S3_KEY (default "chanbot/channels.jsonl")
	BackupGitRepo    string   `toml:"backup_git_repo"`    // CHANBOT_BACKUP_GIT_REPO (enables git when set; path to clone)
	BackupGitFile    string   `toml:"backup_git_file"`    // CHANBOT_BACKUP_GIT_FILE (default "channels.jsonl")
	BackupGitBranch  string   `toml:"backup_git_branch"`  // CHANBOT_BACKUP_GIT_BRANCH (default "main")
}

func defaults() *Config {
	return &Config{
		HTTPAddr:          ":8080",
		GRPCAddr:          ":9090",
		Store:             StoreFile,
		DBPath:            "db.json",
		MongoDatabase:     "chanbot",
		SweepSchedule:     "0 0 0 * * *",
		DefaultExpireDays: 14,
		LeaveAfterCreate:  true,
		BackupS3Region:    "us-east-1",
		BackupS3Key:       "chanbot/channels.jsonl",
		BackupGitFile:     "channels.jsonl",
		BackupGitBranch:   "main",
	}
}

// Load reads the file named by CHANBOT_CONFIG, if any, then applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	c := defaults()
	if path := os.Getenv("CHANBOT_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("CHANBOT_CONFIG: %w", err)
		}
	}

	c.SlackUserToken = envOrDefault("SLACK_USER_TOKEN", c.SlackUserToken)
	c.SlackBotToken = envOrDefault("SLACK_BOT_TOKEN", c.SlackBotToken)
	c.SlackSigningSecret = envOrDefault("SLACK_SIGNING_SECRET", c.SlackSigningSecret)
	c.SlackClientID = envOrDefault("SLACK_CLIENT_ID", c.SlackClientID)
	c.SlackClientSecret = envOrDefault("SLACK_CLIENT_SECRET", c.SlackClientSecret)
	c.AuthChannel = envOrDefault("AUTH_CHANNEL", c.AuthChannel)
	c.HTTPAddr = envOrDefault("CHANBOT_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = envOrDefault("CHANBOT_GRPC_ADDR", c.GRPCAddr)
	c.AuthToken = envOrDefault("CHANBOT_AUTH_TOKEN", c.AuthToken)
	c.NATSURL = envOrDefault("CHANBOT_NATS_URL", c.NATSURL)
	c.Store = envOrDefault("CHANBOT_STORE", c.Store)
	c.DBPath = envOrDefault("CHANBOT_DB_PATH", c.DBPath)
	c.DatabaseURL = envOrDefault("DATABASE_URL", c.DatabaseURL)
	c.MongoURI = envOrDefault("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = envOrDefault("MONGODB_DATABASE", c.MongoDatabase)
	c.SweepSchedule = envOrDefault("CHANBOT_SWEEP_SCHEDULE", c.SweepSchedule)
	c.BackupS3Bucket = envOrDefault("CHANBOT_BACKUP_S3_BUCKET", c.BackupS3Bucket)
	c.BackupS3Endpoint = envOrDefault("CHANBOT_BACKUP_S3_ENDPOINT", c.BackupS3Endpoint)
	c.BackupS3Region = envOrDefault("CHANBOT_BACKUP_S3_REGION", c.BackupS3Region)
	c.BackupS3Key = envOrDefault("CHANBOT_BACKUP_S3_KEY", c.BackupS3Key)
	c.BackupGitRepo = envOrDefault("CHANBOT_BACKUP_GIT_REPO", c.BackupGitRepo)
	c.BackupGitFile = envOrDefault("CHANBOT_BACKUP_GIT_FILE", c.BackupGitFile)
	c.BackupGitBranch = envOrDefault("CHANBOT_BACKUP_GIT_BRANCH", c.BackupGitBranch)

	if v := os.Getenv("CHANBOT_DEFAULT_EXPIRE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CHANBOT_DEFAULT_EXPIRE_DAYS: %w", err)
		}
		c.DefaultExpireDays = n
	}
	if v := os.Getenv("CHANBOT_LEAVE_AFTER_CREATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CHANBOT_LEAVE_AFTER_CREATE: %w", err)
		}
		c.LeaveAfterCreate = b
	}
	if v := os.Getenv("CHANBOT_BACKUP_INTERVAL"); v != "" {
		if err := c.BackupInterval.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("CHANBOT_BACKUP_INTERVAL: %w", err)
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	for _, req := range []struct{ name, value string }{
		{"SLACK_USER_TOKEN", c.SlackUserToken},
		{"SLACK_BOT_TOKEN", c.SlackBotToken},
		{"SLACK_SIGNING_SECRET", c.SlackSigningSecret},
	} {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.Store {
	case StoreFile:
		if c.DBPath == "" {
			return fmt.Errorf("CHANBOT_DB_PATH is required for the file store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("CHANBOT_STORE: unknown store %q", c.Store)
	}
	if c.DefaultExpireDays <= 0 {
		return fmt.Errorf("CHANBOT_DEFAULT_EXPIRE_DAYS must be positive, got %d", c.DefaultExpireDays)
	}
	if c.BackupInterval.Duration < 0 {
		return fmt.Errorf("CHANBOT_BACKUP_INTERVAL must not be negative")
	}
	if c.GRPCAddr == "-" {
		c.GRPCAddr = ""
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
