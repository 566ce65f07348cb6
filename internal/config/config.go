// Package config provides YAML-based configuration loading for platemask.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Catalog drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Input sources accepted by modes.normal_first_original_source.
const (
	SourceBackup  = "backup"
	SourceCurrent = "current"
)

// Config is the top-level platemask configuration, loaded from platemask.yaml.
type Config struct {
	LogDir    string          `yaml:"log_dir"`
	LockFile  string          `yaml:"lock_file"`
	Workers   int             `yaml:"workers"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Storage   StorageConfig   `yaml:"storage"`
	Inference InferenceConfig `yaml:"inference"`
	Render    RenderConfig    `yaml:"render"`
	Roles     RolesConfig     `yaml:"roles"`
	Modes     ModesConfig     `yaml:"modes"`
	Notify    NotifyConfig    `yaml:"notify"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Export    ExportConfig    `yaml:"export"`
}

// CatalogConfig holds connection settings for the upload_files database.
type CatalogConfig struct {
	Driver           string        `yaml:"driver"`
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// StorageConfig selects the blob store backing originals, backups and
// detect outputs.
type StorageConfig struct {
	Backend string   `yaml:"backend"`
	Root    string   `yaml:"root"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds object storage settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// InferenceConfig points at the plate detection service.
type InferenceConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
}

// RenderConfig controls mask and banner compositing.
type RenderConfig struct {
	BannerPath  string `yaml:"banner_path"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// RolesConfig controls branch number classification.
type RolesConfig struct {
	SkipDetectionBranches []int `yaml:"skip_detection_branches"`
}

// ModesConfig holds run mode tunables.
type ModesConfig struct {
	NormalFirstOriginalSource string `yaml:"normal_first_original_source"`
}

// NotifyConfig controls run summary delivery.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	Command           string `yaml:"command"`
}

// DashboardConfig holds the status dashboard settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// ExportConfig holds daily export settings.
type ExportConfig struct {
	ImageBaseURL string `yaml:"image_base_url"`
}

// Load reads a YAML config file from path and returns a validated Config.
// Dotenv files next to the working directory are loaded first so that
// environment overrides can come from .env or .env.production.
func Load(path string) (*Config, error) {
	loadDotenv()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TrackingDir is where per-date tracking files live.
func (c *Config) TrackingDir() string {
	return filepath.Join(c.LogDir, "tracking")
}

func loadDotenv() {
	for _, name := range []string{".env.production", ".env"} {
		if _, err := os.Stat(name); err == nil {
			// godotenv.Load never overrides variables that are already set.
			_ = godotenv.Load(name)
		}
	}
}

// applyEnv lets secrets and endpoints come from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("PLATEMASK_CATALOG_DSN"); v != "" {
		c.Catalog.DSN = v
	}
	if v := os.Getenv("PLATEMASK_S3_BUCKET"); v != "" {
		c.Storage.S3.Bucket = v
	}
	if v := os.Getenv("PLATEMASK_INFERENCE_URL"); v != "" {
		c.Inference.URL = v
	}
	if v := os.Getenv("PLATEMASK_SLACK_WEBHOOK_URL"); v != "" {
		c.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("PLATEMASK_DISCORD_WEBHOOK_URL"); v != "" {
		c.Notify.DiscordWebhookURL = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.LogDir = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.LockFile == "" {
		c.LockFile = filepath.Join(c.LogDir, "platemask.lock")
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Catalog.Driver == "" {
		c.Catalog.Driver = DriverPostgres
	}
	if c.Catalog.MaxConns == 0 {
		c.Catalog.MaxConns = 4
	}
	if c.Catalog.DialTimeout == 0 {
		c.Catalog.DialTimeout = 5 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendLocal
	}
	if c.Storage.S3.Prefix == "" {
		c.Storage.S3.Prefix = "webroot"
	}
	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = 60 * time.Second
	}
	if c.Render.JPEGQuality == 0 {
		c.Render.JPEGQuality = 98
	}
	if c.Modes.NormalFirstOriginalSource == "" {
		c.Modes.NormalFirstOriginalSource = SourceBackup
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Catalog.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("catalog.driver %q is not one of postgres, mysql, sqlite", c.Catalog.Driver))
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Root == "" {
			errs = append(errs, "storage.root is required for the local backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, "storage.s3.bucket is required for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q is not one of local, s3", c.Storage.Backend))
	}
	switch c.Modes.NormalFirstOriginalSource {
	case SourceBackup, SourceCurrent:
	default:
		errs = append(errs, fmt.Sprintf("modes.normal_first_original_source %q is not one of backup, current", c.Modes.NormalFirstOriginalSource))
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		errs = append(errs, "render.jpeg_quality must be between 1 and 100")
	}
	if c.Inference.MinConfidence < 0 || c.Inference.MinConfidence > 1 {
		errs = append(errs, "inference.min_confidence must be between 0 and 1")
	}
	for i, b := range c.Roles.SkipDetectionBranches {
		if b == 1 {
			errs = append(errs, fmt.Sprintf("roles.skip_detection_branches[%d]: branch 1 is always the first image", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
