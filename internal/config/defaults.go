package config

import (
	"fmt"
	"runtime"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier runs every domain applier in order.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier returns the applier chain used by Load.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&SiteDefaultApplier{},
			&SourceDefaultApplier{},
			&TemplateDefaultApplier{},
			&RendererDefaultApplier{},
			&OutputDefaultApplier{},
			&BuildDefaultApplier{},
			&LoggingDefaultApplier{},
			&ServeDefaultApplier{},
			&DaemonDefaultApplier{},
			&HistoryDefaultApplier{},
			&NotifyDefaultApplier{},
			&RetryDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// GetApplierByDomain returns a specific domain applier (useful for testing).
func (c *CompositeDefaultApplier) GetApplierByDomain(domain string) DefaultApplier {
	for _, applier := range c.appliers {
		if applier.Domain() == domain {
			return applier
		}
	}
	return nil
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) error {
	return NewDefaultApplier().ApplyDefaults(cfg)
}

// SiteDefaultApplier handles Site defaults.
type SiteDefaultApplier struct{}

func (s *SiteDefaultApplier) Domain() string { return "site" }

func (s *SiteDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Site.Title == "" {
		cfg.Site.Title = "Documentation"
	}
	if cfg.Site.Variant == "" {
		cfg.Site.Variant = VariantFull
	}
	return nil
}

// SourceDefaultApplier handles Source defaults.
type SourceDefaultApplier struct{}

func (s *SourceDefaultApplier) Domain() string { return "source" }

func (s *SourceDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Source.Dir == "" {
		cfg.Source.Dir = "contents"
	}
	if cfg.Source.IndexFile == "" {
		cfg.Source.IndexFile = "index.md"
	}
	if r := cfg.Source.Repository; r != nil && r.Depth == 0 {
		r.Depth = 1
	}
	return nil
}

// TemplateDefaultApplier handles Template defaults.
type TemplateDefaultApplier struct{}

func (t *TemplateDefaultApplier) Domain() string { return "template" }

func (t *TemplateDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Template.Syntax == "" {
		cfg.Template.Syntax = "go"
	}
	if cfg.Template.SentinelPrefix == "" {
		cfg.Template.SentinelPrefix = "_l_l_l_l_0000ACTLAB_"
	}
	if cfg.Template.ChildrenHeading == "" {
		cfg.Template.ChildrenHeading = "この章の内容"
	}
	return nil
}

// RendererDefaultApplier handles Renderer defaults.
type RendererDefaultApplier struct{}

func (r *RendererDefaultApplier) Domain() string { return "renderer" }

func (r *RendererDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Renderer.Kind == "" {
		cfg.Renderer.Kind = "auto"
	}
	if cfg.Renderer.Command == "" {
		cfg.Renderer.Command = "pandoc"
	}
	if cfg.Renderer.Timeout == "" {
		cfg.Renderer.Timeout = "2m"
	}
	return nil
}

// OutputDefaultApplier handles Output defaults.
type OutputDefaultApplier struct{}

func (o *OutputDefaultApplier) Domain() string { return "output" }

func (o *OutputDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "htmlOutput"
	}
	if cfg.Output.WorkDir == "" {
		cfg.Output.WorkDir = "templateTmp"
	}
	return nil
}

// BuildDefaultApplier handles Build defaults.
type BuildDefaultApplier struct{}

func (b *BuildDefaultApplier) Domain() string { return "build" }

func (b *BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Build.Concurrency <= 0 {
		cfg.Build.Concurrency = runtime.NumCPU()
	}
	return nil
}

// LoggingDefaultApplier handles Logging defaults.
type LoggingDefaultApplier struct{}

func (l *LoggingDefaultApplier) Domain() string { return "logging" }

func (l *LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// ServeDefaultApplier handles Serve defaults.
type ServeDefaultApplier struct{}

func (s *ServeDefaultApplier) Domain() string { return "serve" }

func (s *ServeDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = "127.0.0.1:8080"
	}
	if cfg.Serve.Debounce == "" {
		cfg.Serve.Debounce = "500ms"
	}
	return nil
}

// DaemonDefaultApplier handles Daemon defaults.
type DaemonDefaultApplier struct{}

func (d *DaemonDefaultApplier) Domain() string { return "daemon" }

func (d *DaemonDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Daemon.Schedule == "" && cfg.Daemon.Interval == "" {
		cfg.Daemon.Interval = "15m"
	}
	return nil
}

// HistoryDefaultApplier handles History defaults.
type HistoryDefaultApplier struct{}

func (h *HistoryDefaultApplier) Domain() string { return "history" }

func (h *HistoryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.History.Keep == 0 {
		cfg.History.Keep = 100
	}
	return nil
}

// NotifyDefaultApplier handles Notify defaults.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "pagetree.builds"
	}
	return nil
}
