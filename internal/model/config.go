package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `mapstructure:"addr" yaml:"addr"`

	// AdminToken is the bearer token required on every /api request.
	AdminToken string `mapstructure:"admin_token" yaml:"admin_token"`
}

// FolderConfig names the remote mailbox folders the console reads.
type FolderConfig struct {
	Inbox string `mapstructure:"inbox" yaml:"inbox"`
	Spam  string `mapstructure:"spam" yaml:"spam"`
	Sent  string `mapstructure:"sent" yaml:"sent"`
}

// MailConfig holds the admin mailbox identity and transport endpoints.
type MailConfig struct {
	// Address is the system's own mailbox address. It is the envelope
	// sender for every outbound message and the recipient of
	// auto-reply notices.
	Address string `mapstructure:"address" yaml:"address"`

	// DisplayName is used in the From header of manual and bulk sends.
	DisplayName string `mapstructure:"display_name" yaml:"display_name"`

	Password string `mapstructure:"password" yaml:"password"`

	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`

	Folders FolderConfig `mapstructure:"folders" yaml:"folders"`
}

// BlobConfig holds credentials for the S3-compatible object storage bucket.
type BlobConfig struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`

	// PublicBaseURL is the public prefix under which bucket objects are
	// reachable, without a trailing slash.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// AutoReplyRuntimeConfig holds settings for the periodic check trigger.
type AutoReplyRuntimeConfig struct {
	// CheckIntervalSec is how often (in seconds) the scheduler is polled.
	CheckIntervalSec int `mapstructure:"check_interval_sec" yaml:"check_interval_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server    ServerConfig           `mapstructure:"server" yaml:"server"`
	Mail      MailConfig             `mapstructure:"mail" yaml:"mail"`
	Blob      BlobConfig             `mapstructure:"blob" yaml:"blob"`
	AutoReply AutoReplyRuntimeConfig `mapstructure:"auto_reply" yaml:"auto_reply"`

	// DatabasePath is where the SQLite settings database lives.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailconsole/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailconsole", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Mail: MailConfig{
			IMAPHost: "imap.gmail.com",
			IMAPPort: "993",
			SMTPHost: "smtp.gmail.com",
			SMTPPort: "465",
			Folders: FolderConfig{
				Inbox: "INBOX",
				Spam:  "[Gmail]/Spam",
				Sent:  "[Gmail]/Sent Mail",
			},
		},
		Blob: BlobConfig{
			Region: "auto",
		},
		AutoReply: AutoReplyRuntimeConfig{
			CheckIntervalSec: 60,
		},
		DatabasePath: "mailconsole.db",
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILCONSOLE_ override file values.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("mailconsole")
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("mail.imap_host", "imap.gmail.com")
	v.SetDefault("mail.imap_port", "993")
	v.SetDefault("mail.smtp_host", "smtp.gmail.com")
	v.SetDefault("mail.smtp_port", "465")
	v.SetDefault("mail.folders.inbox", "INBOX")
	v.SetDefault("mail.folders.spam", "[Gmail]/Spam")
	v.SetDefault("mail.folders.sent", "[Gmail]/Sent Mail")
	v.SetDefault("blob.region", "auto")
	v.SetDefault("auto_reply.check_interval_sec", 60)
	v.SetDefault("database_path", "mailconsole.db")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("mail", cfg.Mail)
	v.Set("blob", cfg.Blob)
	v.Set("auto_reply", cfg.AutoReply)
	v.Set("database_path", cfg.DatabasePath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
