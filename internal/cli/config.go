package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/tobert/otlp-waterfall/internal/timeline"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// Config holds the runtime configuration for the waterfall viewer.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// Tree and layout
	InitialExpansion string `json:"initial_expansion,omitempty" yaml:"initial_expansion,omitempty"` // "all" (default) or "roots"
	InvalidPolicy    string `json:"invalid_policy,omitempty" yaml:"invalid_policy,omitempty"`       // "mark" (default) or "reject"
	MarkerMode       string `json:"marker_mode,omitempty" yaml:"marker_mode,omitempty"`             // "even" (default) or "nice"
	MarkerCount      int    `json:"marker_count,omitempty" yaml:"marker_count,omitempty"`

	// Text rendering
	Width          int  `json:"width,omitempty" yaml:"width,omitempty"`
	ColorByService bool `json:"color_by_service,omitempty" yaml:"color_by_service,omitempty"`

	// Web UI and MCP HTTP endpoint
	HTTPHost string `json:"http_host,omitempty" yaml:"http_host,omitempty"`
	HTTPPort int    `json:"http_port,omitempty" yaml:"http_port,omitempty"`

	// Loading
	HistorySize  int    `json:"history_size,omitempty" yaml:"history_size,omitempty"`     // batches kept for list_revisions
	CacheMaxCost int64  `json:"cache_max_cost,omitempty" yaml:"cache_max_cost,omitempty"` // spans worth of built traces
	Debounce     string `json:"debounce,omitempty" yaml:"debounce,omitempty"`             // file watch debounce, e.g. "100ms"
	OtelConfig   string `json:"otel_config,omitempty" yaml:"otel_config,omitempty"`       // collector config to discover span files

	// Logging configuration
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		InitialExpansion: "all",
		InvalidPolicy:    "mark",
		MarkerMode:       "even",
		MarkerCount:      timeline.DefaultMarkerCount,
		Width:            100,
		HTTPHost:         "127.0.0.1",
		HTTPPort:         4381,
		HistorySize:      16,
		CacheMaxCost:     1 << 20,
		Debounce:         "100ms",
	}
}

// LoadConfigFromFile loads configuration from a JSON or YAML file at the
// given path. It returns an error if the file cannot be read or parsed.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return parseConfig(path, data)
}

// parseConfig decodes data by the extension of path; anything other than
// .yaml or .yml is read as JSON.
func parseConfig(path string, data []byte) (*Config, error) {
	var (
		config Config
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// configNames are the per-directory config file names, in lookup order.
var configNames = []string{".otlp-waterfall.json", ".otlp-waterfall.yaml", ".otlp-waterfall.yml"}

// FindProjectConfig searches for a project config file starting in dir.
// It walks up looking for the file, stopping when it finds a .git
// directory (project root) or reaches the filesystem root.
func FindProjectConfig(dir string) (string, error) {
	return findProjectConfig(dir, os.Stat)
}

func findProjectConfig(dir string, stat func(string) (os.FileInfo, error)) (string, error) {
	for {
		for _, name := range configNames {
			configPath := filepath.Join(dir, name)
			if _, err := stat(configPath); err == nil {
				return configPath, nil
			}
		}

		// Stop at the repository root even if no config is there.
		if _, err := stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file:
// ~/.config/otlp-waterfall/config.yaml when it exists, else config.json.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return globalConfigPath(home, os.Stat)
}

func globalConfigPath(home string, stat func(string) (os.FileInfo, error)) string {
	dir := filepath.Join(home, ".config", "otlp-waterfall")
	if yamlPath := filepath.Join(dir, "config.yaml"); exists(yamlPath, stat) {
		return yamlPath
	}
	return filepath.Join(dir, "config.json")
}

func exists(path string, stat func(string) (os.FileInfo, error)) bool {
	_, err := stat(path)
	return err == nil
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.InitialExpansion != "" {
		merged.InitialExpansion = overlay.InitialExpansion
	}
	if overlay.InvalidPolicy != "" {
		merged.InvalidPolicy = overlay.InvalidPolicy
	}
	if overlay.MarkerMode != "" {
		merged.MarkerMode = overlay.MarkerMode
	}
	if overlay.MarkerCount > 0 {
		merged.MarkerCount = overlay.MarkerCount
	}

	if overlay.Width > 0 {
		merged.Width = overlay.Width
	}
	if overlay.ColorByService {
		merged.ColorByService = overlay.ColorByService
	}

	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}

	if overlay.HistorySize > 0 {
		merged.HistorySize = overlay.HistorySize
	}
	if overlay.CacheMaxCost > 0 {
		merged.CacheMaxCost = overlay.CacheMaxCost
	}
	if overlay.Debounce != "" {
		merged.Debounce = overlay.Debounce
	}
	if overlay.OtelConfig != "" {
		merged.OtelConfig = overlay.OtelConfig
	}

	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file found from the working directory (if exists)
// 4. Explicit config file (if specified via configPath), instead of 3
// Later sources override earlier ones.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// The global config is optional; a broken one is ignored.
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		if projectPath, err := FindProjectConfig(cwd); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}

// settings is a validated Config converted to the types the packages use.
type settings struct {
	initial     view.InitialPolicy
	invalid     trace.InvalidPolicy
	markers     timeline.MarkerMode
	markerCount int
	debounce    time.Duration
}

// parse validates the enumerated and duration fields.
func (c *Config) parse() (settings, error) {
	var (
		s   settings
		err error
		all []error
	)
	if s.initial, err = view.ParseInitialPolicy(c.InitialExpansion); err != nil {
		all = append(all, err)
	}
	if s.invalid, err = trace.ParseInvalidPolicy(c.InvalidPolicy); err != nil {
		all = append(all, err)
	}
	if s.markers, err = timeline.ParseMarkerMode(c.MarkerMode); err != nil {
		all = append(all, err)
	}
	if c.Debounce != "" {
		if s.debounce, err = time.ParseDuration(c.Debounce); err != nil {
			all = append(all, fmt.Errorf("invalid debounce %q: %w", c.Debounce, err))
		}
	}
	s.markerCount = c.MarkerCount
	if err := errors.Join(all...); err != nil {
		return settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// HTTPAddr is the listen address for the web UI.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}
