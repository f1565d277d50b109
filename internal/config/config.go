package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// PlaceholderHost is the host shipped in the sample configuration
const PlaceholderHost = "something.atlassian.net"

// DefaultFile is used when --config is not given
const DefaultFile = "./config.yaml"

// Config represents the application configuration
type Config struct {
	HostURL            string   `yaml:"host_url"`
	UserEmail          string   `yaml:"user_email"`
	APIToken           string   `yaml:"api_token"`
	IncludeAttachments bool     `yaml:"include_attachments"`
	DownloadLocally    bool     `yaml:"download_locally"`
	BackupDir          string   `yaml:"backup_dir"`
	Poll               Poll     `yaml:"poll"`
	UploadToS3         S3Config `yaml:"upload_to_s3"`
	History            string   `yaml:"history"`
	Metrics            Metrics  `yaml:"metrics"`
	LogLevel           string   `yaml:"log_level"`
}

// Poll controls how job progress is polled
type Poll struct {
	Interval time.Duration `yaml:"interval"`
	// Timeout of zero disables the deadline.
	Timeout time.Duration `yaml:"timeout"`
	// MaxInterval greater than Interval turns on exponential backoff.
	MaxInterval time.Duration `yaml:"max_interval"`
}

// S3Config represents S3-compatible storage configuration
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// Enabled reports whether an upload destination is configured
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// Metrics configures the optional Pushgateway export
type Metrics struct {
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	return &Config{
		BackupDir: "./backups",
		Poll: Poll{
			Interval: 10 * time.Second,
			Timeout:  6 * time.Hour,
		},
		UploadToS3: S3Config{
			Endpoint: "s3.amazonaws.com",
			Secure:   true,
		},
		History: "./backups/history.db",
		Metrics: Metrics{
			Job: "atlasbackup",
		},
		LogLevel: "info",
	}
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = DefaultFile
	}

	if err := loadFromFile(cfg, configFile); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if flags != nil {
		loadFromFlags(cfg, flags)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
}

// Save writes the configuration as YAML, readable only by the owner
func Save(filename string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filename, data, 0o600)
}

func (c *Config) validate() error {
	if c.HostURL == "" {
		return fmt.Errorf("host_url is required")
	}
	if c.HostURL == PlaceholderHost {
		return fmt.Errorf("host_url is still %q: edit the config file or run the wizard command", PlaceholderHost)
	}
	if c.UserEmail == "" {
		return fmt.Errorf("user_email is required")
	}
	if c.APIToken == "" {
		return fmt.Errorf("api_token is required")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Poll.Timeout < 0 {
		return fmt.Errorf("poll timeout cannot be negative")
	}

	if c.DownloadLocally && c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required when download_locally is set")
	}

	return nil
}
