package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrInvalid marks configuration that must stop the process at startup.
var ErrInvalid = errors.New("invalid config")

// Parse strategies understood by the source registry.
const (
	StrategyFeed   = "feed"
	StrategyScrape = "scrape"
)

type Config struct {
	Sources           []Source   `yaml:"sources"`
	Categories        []Category `yaml:"categories"`
	CatchAll          string     `yaml:"catch_all"`
	HighlightKeywords []string   `yaml:"highlight_keywords"`
	Collection        Collection `yaml:"collection"`
	Enrich            Enrich     `yaml:"enrich"`
	Archive           Archive    `yaml:"archive"`
	Output            Output     `yaml:"output"`
	Server            Server     `yaml:"server"`
	Logging           Logging    `yaml:"logging"`
}

type Source struct {
	Name           string    `yaml:"name"`
	URL            string    `yaml:"url"`
	Strategy       string    `yaml:"strategy"`
	Enabled        *bool     `yaml:"enabled"`
	AllowedDomains []string  `yaml:"allowed_domains"`
	Selectors      Selectors `yaml:"selectors"`
}

// Selectors drive the scrape strategy. Item and Title are required; the
// rest are optional child selectors relative to each item block.
type Selectors struct {
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
	Date     string `yaml:"date"`
	DateAttr string `yaml:"date_attr"`
	Summary  string `yaml:"summary"`
}

type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Collection struct {
	Schedule         string        `yaml:"schedule"`
	RunOnStart       bool          `yaml:"run_on_start"`
	Timeout          time.Duration `yaml:"timeout"`
	Workers          int           `yaml:"workers"`
	MaxPerSource     int           `yaml:"max_per_source"`
	SummaryMaxLength int           `yaml:"summary_max_length"`
	DedupWindow      time.Duration `yaml:"dedup_window"`
	UserAgent        string        `yaml:"user_agent"`
	Merge            Merge         `yaml:"merge"`
}

// Merge keeps previously published items across cycles until they age out
// or the snapshot exceeds MaxItems.
type Merge struct {
	Enabled  bool          `yaml:"enabled"`
	MaxAge   time.Duration `yaml:"max_age"`
	MaxItems int           `yaml:"max_items"`
}

type Enrich struct {
	Enabled  bool          `yaml:"enabled"`
	MaxItems int           `yaml:"max_items"`
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

type Archive struct {
	Enabled bool `yaml:"enabled"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// IsEnabled reports whether the source takes part in collection.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// EnabledSources returns the enabled sources in configuration order.
func (c *Config) EnabledSources() []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// ConfigDir returns the XDG config directory for secnews.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "secnews")
}

// DataDir returns the XDG data directory for secnews.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "secnews")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/secnews/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'secnews init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		CatchAll: "Other",
		Collection: Collection{
			Schedule:         "@every 30m",
			RunOnStart:       true,
			Timeout:          10 * time.Second,
			MaxPerSource:     20,
			SummaryMaxLength: 300,
			DedupWindow:      24 * time.Hour,
			UserAgent:        "secnews/1.0 (security news collector)",
			Merge: Merge{
				MaxAge:   7 * 24 * time.Hour,
				MaxItems: 500,
			},
		},
		Enrich: Enrich{
			MaxItems: 20,
			Timeout:  15 * time.Second,
			Interval: 500 * time.Millisecond,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Strategy == "" {
			cfg.Sources[i].Strategy = StrategyFeed
		}
	}

	return cfg, nil
}

// Validate checks the conditions that must prevent startup.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.EnabledSources()) == 0 {
		add("at least one enabled source is required")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			add("sources[%d]: name is required", i)
		} else if _, dup := seen[name]; dup {
			add("sources[%d]: duplicate name %q", i, name)
		} else {
			seen[name] = struct{}{}
		}

		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("sources[%d] %q: url must be an absolute http(s) URL", i, name)
		}

		switch s.Strategy {
		case StrategyFeed:
		case StrategyScrape:
			if s.Selectors.Item == "" || s.Selectors.Title == "" {
				add("sources[%d] %q: scrape strategy needs selectors.item and selectors.title", i, name)
			}
		default:
			add("sources[%d] %q: unknown strategy %q", i, name, s.Strategy)
		}
	}

	if strings.TrimSpace(c.CatchAll) == "" {
		add("catch_all must not be empty")
	}
	if len(c.Categories) == 0 {
		add("at least one category is required")
	}
	cats := make(map[string]struct{}, len(c.Categories))
	for i, cat := range c.Categories {
		switch {
		case strings.TrimSpace(cat.Name) == "":
			add("categories[%d]: name is required", i)
		case strings.EqualFold(cat.Name, c.CatchAll):
			add("categories[%d]: %q collides with catch_all", i, cat.Name)
		default:
			if _, dup := cats[cat.Name]; dup {
				add("categories[%d]: duplicate name %q", i, cat.Name)
			}
			cats[cat.Name] = struct{}{}
		}
		if len(cat.Keywords) == 0 {
			add("categories[%d] %q: keywords must not be empty", i, cat.Name)
		}
		for _, kw := range cat.Keywords {
			if strings.TrimSpace(kw) == "" {
				add("categories[%d] %q: blank keyword", i, cat.Name)
				break
			}
		}
	}

	col := c.Collection
	if col.Timeout <= 0 {
		add("collection.timeout must be positive")
	}
	if col.Workers < 0 {
		add("collection.workers cannot be negative")
	}
	if col.MaxPerSource <= 0 {
		add("collection.max_per_source must be positive")
	}
	if col.SummaryMaxLength <= 0 {
		add("collection.summary_max_length must be positive")
	}
	if col.DedupWindow < 0 {
		add("collection.dedup_window cannot be negative")
	}
	if col.Merge.Enabled && col.Merge.MaxAge <= 0 && col.Merge.MaxItems <= 0 {
		add("collection.merge needs max_age or max_items to bound the snapshot")
	}
	if c.Enrich.Enabled && (c.Enrich.MaxItems <= 0 || c.Enrich.Timeout <= 0) {
		add("enrich.max_items and enrich.timeout must be positive when enrich is enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(problems, "\n  "))
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
