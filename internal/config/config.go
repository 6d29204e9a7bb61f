// Package config loads, defaults and validates the pagetree YAML
// configuration.
package config

import (
	"bytes"
	stdErrors "errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "pagetree.yaml"

// Config is the complete pagetree configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Source   SourceConfig   `yaml:"source"`
	Template TemplateConfig `yaml:"template"`
	Renderer RendererConfig `yaml:"renderer"`
	Assets   AssetsConfig   `yaml:"assets"`
	Output   OutputConfig   `yaml:"output"`
	Build    BuildConfig    `yaml:"build"`
	Logging  LoggingConfig  `yaml:"logging"`
	Serve    ServeConfig    `yaml:"serve"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	History  HistoryConfig  `yaml:"history"`
	Notify   NotifyConfig   `yaml:"notify"`
	Publish  PublishConfig  `yaml:"publish"`
	Retry    RetryConfig    `yaml:"retry"`
}

// SiteConfig describes the generated site as a whole.
type SiteConfig struct {
	// Title is the root page title and the suffix of every other page title.
	Title   string  `yaml:"title" validate:"required"`
	Variant Variant `yaml:"variant" validate:"oneof=full minimal"`
}

// Variant selects the page feature set.
type Variant string

const (
	VariantFull    Variant = "full"
	VariantMinimal Variant = "minimal"
)

// SourceConfig locates the content tree.
type SourceConfig struct {
	Dir        string            `yaml:"dir" validate:"required"`
	IndexFile  string            `yaml:"index_file" validate:"required,excludes=/"`
	Repository *RepositoryConfig `yaml:"repository,omitempty"`
}

// RepositoryConfig makes Source.Dir a working copy of a git repository that
// is cloned or updated before each build.
type RepositoryConfig struct {
	URL    string `yaml:"url" validate:"required"`
	Branch string `yaml:"branch,omitempty"`
	// Token authenticates HTTPS remotes (basic auth with a token password).
	Token string `yaml:"token,omitempty"`
	// KeyPath is a private key file for SSH remotes.
	KeyPath string `yaml:"key_path,omitempty"`
	Depth   int    `yaml:"depth,omitempty" validate:"gte=0"`
}

// TemplateConfig selects the shared base template.
type TemplateConfig struct {
	// File is the base template; empty uses the embedded default.
	File            string `yaml:"file,omitempty"`
	Syntax          string `yaml:"syntax" validate:"oneof=go sentinel"`
	SentinelPrefix  string `yaml:"sentinel_prefix,omitempty"`
	ChildrenHeading string `yaml:"children_heading,omitempty"`
}

// RendererConfig selects how pages are rendered.
type RendererConfig struct {
	Kind    string   `yaml:"kind" validate:"oneof=pandoc goldmark auto"`
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Timeout string   `yaml:"timeout,omitempty" validate:"omitempty,duration"`
}

// TimeoutDuration is Timeout parsed; zero means unbounded.
func (r RendererConfig) TimeoutDuration() time.Duration { return parseDuration(r.Timeout) }

// AssetsConfig locates the static asset bundle.
type AssetsConfig struct {
	// Source is the bundle directory; empty disables asset seeding.
	Source string   `yaml:"source,omitempty"`
	Files  []string `yaml:"files,omitempty" validate:"dive,required"`
}

// OutputConfig places generated files.
type OutputConfig struct {
	Directory string `yaml:"directory" validate:"required"`
	// WorkDir holds resolved per-page templates; it is reset on every build.
	WorkDir string `yaml:"work_dir" validate:"required"`
	// ReportFile receives the JSON build report; empty disables it.
	ReportFile string `yaml:"report_file,omitempty"`
}

// BuildConfig tunes the build pipeline.
type BuildConfig struct {
	Concurrency     int  `yaml:"concurrency" validate:"gte=1,lte=256"`
	AllowCollisions bool `yaml:"allow_collisions"`
	VerifyLinks     bool `yaml:"verify_links"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" validate:"oneof=debug info warn error"`
	Format LogFormat `yaml:"format" validate:"oneof=json text"`
}

// ServeConfig configures the preview server.
type ServeConfig struct {
	Addr     string `yaml:"addr" validate:"required,hostname_port"`
	Watch    bool   `yaml:"watch"`
	Debounce string `yaml:"debounce" validate:"omitempty,duration"`
}

// DebounceDuration is Debounce parsed.
func (s ServeConfig) DebounceDuration() time.Duration { return parseDuration(s.Debounce) }

// DaemonConfig schedules unattended rebuilds. Schedule (cron) wins over
// Interval when both are set.
type DaemonConfig struct {
	Schedule string `yaml:"schedule,omitempty"`
	Interval string `yaml:"interval,omitempty" validate:"omitempty,duration"`
	// AlwaysBuild disables skipping builds whose source fingerprint is
	// unchanged since the last successful build.
	AlwaysBuild bool `yaml:"always_build,omitempty"`
}

// IntervalDuration is Interval parsed.
func (d DaemonConfig) IntervalDuration() time.Duration { return parseDuration(d.Interval) }

// HistoryConfig configures the build history database.
type HistoryConfig struct {
	// Database is a sqlite file path; empty disables history.
	Database string `yaml:"database,omitempty"`
	Keep     int    `yaml:"keep,omitempty" validate:"gte=0"`
}

// NotifyConfig publishes build events to NATS.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// PublishConfig uploads the output tree to S3-compatible storage.
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty" validate:"required_with=Endpoint"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Insecure  bool   `yaml:"insecure,omitempty"`
}

// Load reads the configuration file at path, expands ${VAR} references from
// the environment (after loading .env files), applies defaults and validates
// the result.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, perrors.ConfigNotFound(path)
	}
	// #nosec G304 - path is supplied by the operator
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to read config file").
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data, then applies defaults and
// validates. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stdErrors.Is(err, io.EOF) {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to parse config")
	}
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = ApplyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return perrors.New(perrors.CategoryConfig, perrors.SeverityFatal,
			"configuration file already exists (use --force to overwrite)").WithContext("path", path)
	}

	example := Default()
	example.Site.Title = "Documentation"
	example.Assets.Source = "bootstrap-5.3.0-dist"
	example.Output.ReportFile = "build-report.json"
	example.History.Database = ".pagetree/history.db"
	example.Daemon.Interval = "15m"
	example.Notify = NotifyConfig{NATSURL: "${PAGETREE_NATS_URL}", Subject: "pagetree.builds"}
	example.Publish = PublishConfig{
		Endpoint:  "${PAGETREE_S3_ENDPOINT}",
		Bucket:    "docs",
		AccessKey: "${PAGETREE_S3_ACCESS_KEY}",
		SecretKey: "${PAGETREE_S3_SECRET_KEY}",
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return perrors.InternalError("failed to marshal example config", err)
	}
	// #nosec G306 - configuration is not secret; credentials are env references
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return perrors.FileSystem("write", path, err)
	}
	return nil
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
