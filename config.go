package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the YAML configuration structure
type AppConfig struct {
	Version      string             `yaml:"version"`
	General      GeneralConfig      `yaml:"general"`
	Auth         AuthConfig         `yaml:"auth"`
	Compartments CompartmentsConfig `yaml:"compartments"`
	Collector    CollectorConfig    `yaml:"collector"`
	Diagram      DiagramConfig      `yaml:"diagram"`
	Output       OutputConfig       `yaml:"output"`
	Filters      FilterConfig       `yaml:"filters"`
	Diff         DiffConfig         `yaml:"diff"`
}

// GeneralConfig holds general execution settings
type GeneralConfig struct {
	Timeout  int    `yaml:"timeout"`   // whole run, in seconds; 0 means no deadline
	LogLevel string `yaml:"log_level"` // silent, normal, verbose, debug
	Progress bool   `yaml:"progress"`  // progress bar on stderr
	Summary  bool   `yaml:"summary"`   // summary table after the run
	FailFast bool   `yaml:"fail_fast"` // abort on the first compartment failure
}

// AuthConfig selects the credential source
type AuthConfig struct {
	Method     string `yaml:"method"`      // api_key or instance_principal
	ConfigFile string `yaml:"config_file"` // OCI config file (api_key)
	Profile    string `yaml:"profile"`     // profile section (api_key)
}

// CompartmentsConfig controls compartment enumeration
type CompartmentsConfig struct {
	IncludeRoot bool `yaml:"include_root"`
	Recursive   bool `yaml:"recursive"`
	ActiveOnly  bool `yaml:"active_only"`
}

// CollectorConfig controls resource listing
type CollectorConfig struct {
	Strict           bool `yaml:"strict"`
	MaxRetries       int  `yaml:"max_retries"`
	BreakerThreshold int  `yaml:"breaker_threshold"`
}

// OutputConfig holds the optional inventory settings
type OutputConfig struct {
	File   string `yaml:"file"`   // inventory path (empty = no inventory)
	Format string `yaml:"format"` // json, csv, tsv
}

// Default configuration values
func getDefaultConfig() *AppConfig {
	return &AppConfig{
		Version: "1.0",
		General: GeneralConfig{
			Timeout:  0,
			LogLevel: "normal",
			Progress: true,
		},
		Auth: AuthConfig{
			Method:     AuthMethodAPIKey,
			ConfigFile: "",
			Profile:    "",
		},
		Compartments: CompartmentsConfig{
			IncludeRoot: false,
			Recursive:   true,
			ActiveOnly:  true,
		},
		Collector: CollectorConfig{
			MaxRetries:       3,
			BreakerThreshold: 3,
		},
		Diagram: DiagramConfig{
			OutputDir:           ".",
			Format:              "png",
			Title:               defaultDiagramTitle,
			PerCompartmentTitle: true,
			Direction:           "LR",
		},
		Output: OutputConfig{
			Format: "json",
		},
		Filters: FilterConfig{
			IncludeCompartments: []string{},
			ExcludeCompartments: []string{},
			IncludeCategories:   []string{},
			ExcludeCategories:   []string{},
		},
		Diff: DiffConfig{
			Format: "text",
		},
	}
}

// Configuration file search paths in priority order
func getConfigPaths() []string {
	var paths []string

	if configFile := os.Getenv("OCI_DIAGRAM_CONFIG_FILE"); configFile != "" {
		paths = append(paths, configFile)
	}

	paths = append(paths, "./oci-diagram.yaml")

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".oci-diagram.yaml"))
	}

	paths = append(paths, "/etc/oci-diagram.yaml")

	return paths
}

// LoadConfig loads the first configuration file found, falling back to defaults
func LoadConfig() (*AppConfig, error) {
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadConfigFile(path)
		}
	}

	config := getDefaultConfig()
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigFile loads a specific configuration file on top of the defaults
func LoadConfigFile(path string) (*AppConfig, error) {
	config := getDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	logger.Debug("Loaded configuration from %s", path)
	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *AppConfig) error {
	validLogLevels := []string{"silent", "normal", "verbose", "debug"}
	if !contains(validLogLevels, config.General.LogLevel) {
		return fmt.Errorf("invalid log_level '%s', must be one of: %v", config.General.LogLevel, validLogLevels)
	}

	if config.General.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got: %d", config.General.Timeout)
	}

	validMethods := []string{AuthMethodAPIKey, AuthMethodInstancePrincipal}
	if !contains(validMethods, config.Auth.Method) {
		return fmt.Errorf("invalid auth method '%s', must be one of: %v", config.Auth.Method, validMethods)
	}

	if config.Collector.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got: %d", config.Collector.MaxRetries)
	}
	if config.Collector.BreakerThreshold < 0 {
		return fmt.Errorf("breaker_threshold cannot be negative, got: %d", config.Collector.BreakerThreshold)
	}

	if err := validateDiagramConfig(config.Diagram); err != nil {
		return err
	}

	if !contains(supportedInventoryFormats, config.Output.Format) {
		return fmt.Errorf("invalid output format '%s', must be one of: %v", config.Output.Format, supportedInventoryFormats)
	}

	if err := ValidateFilterConfig(config.Filters); err != nil {
		return fmt.Errorf("invalid filters: %w", err)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(config *AppConfig, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

// GenerateDefaultConfigFile creates a default configuration file
func GenerateDefaultConfigFile(filename string) error {
	return SaveConfig(getDefaultConfig(), filename)
}

// CLIOverrides carries the flags the user actually set; nil means "not set"
type CLIOverrides struct {
	Timeout     *int
	LogLevel    *string
	Progress    *bool
	Summary     *bool
	FailFast    *bool
	Strict      *bool
	Profile     *string
	AuthMethod  *string
	OutputDir   *string
	Format      *string
	Title       *string
	Direction   *string
	IncludeRoot *bool
	OutputFile  *string
	OutputFmt   *string

	IncludeCompartments *string
	ExcludeCompartments *string
	IncludeCategories   *string
	ExcludeCategories   *string
	NamePattern         *string
	ExcludeNamePattern  *string
}

// MergeWithCLIArgs merges CLI arguments over the configuration file.
// CLI arguments have higher priority than the configuration file.
func MergeWithCLIArgs(config *AppConfig, cli CLIOverrides) {
	if cli.Timeout != nil {
		config.General.Timeout = *cli.Timeout
	}
	if cli.LogLevel != nil && *cli.LogLevel != "" {
		config.General.LogLevel = *cli.LogLevel
	}
	if cli.Progress != nil {
		config.General.Progress = *cli.Progress
	}
	if cli.Summary != nil {
		config.General.Summary = *cli.Summary
	}
	if cli.FailFast != nil {
		config.General.FailFast = *cli.FailFast
	}
	if cli.Strict != nil {
		config.Collector.Strict = *cli.Strict
	}
	if cli.Profile != nil && *cli.Profile != "" {
		config.Auth.Profile = *cli.Profile
	}
	if cli.AuthMethod != nil && *cli.AuthMethod != "" {
		config.Auth.Method = *cli.AuthMethod
	}
	if cli.OutputDir != nil && *cli.OutputDir != "" {
		config.Diagram.OutputDir = *cli.OutputDir
	}
	if cli.Format != nil && *cli.Format != "" {
		config.Diagram.Format = strings.ToLower(*cli.Format)
	}
	if cli.Title != nil && *cli.Title != "" {
		config.Diagram.Title = *cli.Title
	}
	if cli.Direction != nil && *cli.Direction != "" {
		config.Diagram.Direction = strings.ToUpper(*cli.Direction)
	}
	if cli.IncludeRoot != nil {
		config.Compartments.IncludeRoot = *cli.IncludeRoot
	}
	if cli.OutputFile != nil && *cli.OutputFile != "" {
		config.Output.File = *cli.OutputFile
	}
	if cli.OutputFmt != nil && *cli.OutputFmt != "" {
		config.Output.Format = strings.ToLower(*cli.OutputFmt)
	}

	if cli.IncludeCompartments != nil && *cli.IncludeCompartments != "" {
		config.Filters.IncludeCompartments = ParseList(*cli.IncludeCompartments)
	}
	if cli.ExcludeCompartments != nil && *cli.ExcludeCompartments != "" {
		config.Filters.ExcludeCompartments = ParseList(*cli.ExcludeCompartments)
	}
	if cli.IncludeCategories != nil && *cli.IncludeCategories != "" {
		config.Filters.IncludeCategories = ParseList(*cli.IncludeCategories)
	}
	if cli.ExcludeCategories != nil && *cli.ExcludeCategories != "" {
		config.Filters.ExcludeCategories = ParseList(*cli.ExcludeCategories)
	}
	if cli.NamePattern != nil && *cli.NamePattern != "" {
		config.Filters.NamePattern = *cli.NamePattern
	}
	if cli.ExcludeNamePattern != nil && *cli.ExcludeNamePattern != "" {
		config.Filters.ExcludeNamePattern = *cli.ExcludeNamePattern
	}
}

// Validate re-checks the configuration after CLI overrides
func (c *AppConfig) Validate() error {
	return validateConfig(c)
}

// Runtime resolves the settings the driver works with
func (c *AppConfig) Runtime() (Config, error) {
	level, err := ParseLogLevel(c.General.LogLevel)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Timeout:     time.Duration(c.General.Timeout) * time.Second,
		LogLevel:    level,
		ShowSummary: c.General.Summary,
	}, nil
}

// EnumerateOptions returns the compartment enumeration options
func (c *AppConfig) EnumerateOptions() EnumerateOptions {
	return EnumerateOptions{
		IncludeRoot: c.Compartments.IncludeRoot,
		Recursive:   c.Compartments.Recursive,
		ActiveOnly:  c.Compartments.ActiveOnly,
	}
}

// CollectorOptions returns the collector options
func (c *AppConfig) CollectorOptions() CollectorOptions {
	opts := DefaultCollectorOptions()
	opts.Strict = c.Collector.Strict
	opts.MaxRetries = c.Collector.MaxRetries
	opts.BreakerThreshold = uint32(c.Collector.BreakerThreshold)
	opts.Filters = c.Filters
	return opts
}
