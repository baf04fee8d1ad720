package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oci-diagram.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestGetDefaultConfig(t *testing.T) {
	config := getDefaultConfig()

	if config.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", config.Version)
	}
	if config.General.Timeout != 0 || config.General.LogLevel != "normal" || !config.General.Progress {
		t.Errorf("General = %+v", config.General)
	}
	if config.General.Summary || config.General.FailFast {
		t.Errorf("General = %+v, summary and fail_fast should be off", config.General)
	}
	if config.Auth.Method != AuthMethodAPIKey {
		t.Errorf("Auth.Method = %q", config.Auth.Method)
	}
	if config.Compartments.IncludeRoot || !config.Compartments.Recursive || !config.Compartments.ActiveOnly {
		t.Errorf("Compartments = %+v", config.Compartments)
	}
	if config.Collector.MaxRetries != 3 || config.Collector.BreakerThreshold != 3 || config.Collector.Strict {
		t.Errorf("Collector = %+v", config.Collector)
	}

	wantDiagram := DiagramConfig{OutputDir: ".", Format: "png", Title: "OCI Resources", PerCompartmentTitle: true, Direction: "LR"}
	if config.Diagram != wantDiagram {
		t.Errorf("Diagram = %+v, want %+v", config.Diagram, wantDiagram)
	}
	if config.Output.File != "" || config.Output.Format != "json" {
		t.Errorf("Output = %+v", config.Output)
	}
	if config.Diff.Format != "text" {
		t.Errorf("Diff.Format = %q", config.Diff.Format)
	}

	if err := validateConfig(config); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
version: "1.0"
general:
  timeout: 120
  log_level: verbose
  summary: true
auth:
  method: instance_principal
compartments:
  include_root: true
collector:
  strict: true
  max_retries: 5
diagram:
  output_dir: ./diagrams
  format: svg
  title: Acme Cloud
  direction: TB
output:
  file: inventory.csv
  format: csv
filters:
  include_categories: [compute, buckets]
  name_pattern: "^prod-"
`)

	config, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}

	if config.General.Timeout != 120 || config.General.LogLevel != "verbose" || !config.General.Summary {
		t.Errorf("General = %+v", config.General)
	}
	// ファイルに書かれていない値はデフォルトのまま
	if !config.General.Progress {
		t.Error("General.Progress lost its default")
	}
	if !config.Compartments.Recursive || !config.Compartments.IncludeRoot {
		t.Errorf("Compartments = %+v", config.Compartments)
	}
	if config.Auth.Method != AuthMethodInstancePrincipal {
		t.Errorf("Auth.Method = %q", config.Auth.Method)
	}
	if !config.Collector.Strict || config.Collector.MaxRetries != 5 || config.Collector.BreakerThreshold != 3 {
		t.Errorf("Collector = %+v", config.Collector)
	}
	if config.Diagram.Format != "svg" || config.Diagram.Title != "Acme Cloud" || config.Diagram.Direction != "TB" || !config.Diagram.PerCompartmentTitle {
		t.Errorf("Diagram = %+v", config.Diagram)
	}
	if config.Output.File != "inventory.csv" || config.Output.Format != "csv" {
		t.Errorf("Output = %+v", config.Output)
	}
	if !reflect.DeepEqual(config.Filters.IncludeCategories, []string{"compute", "buckets"}) || config.Filters.NamePattern != "^prod-" {
		t.Errorf("Filters = %+v", config.Filters)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		contains string
	}{
		{"invalid yaml", "general: [unclosed", "failed to parse"},
		{"log level", "general:\n  log_level: chatty\n", "invalid log_level"},
		{"timeout", "general:\n  timeout: -1\n", "timeout cannot be negative"},
		{"auth method", "auth:\n  method: password\n", "invalid auth method"},
		{"retries", "collector:\n  max_retries: -1\n", "max_retries cannot be negative"},
		{"threshold", "collector:\n  breaker_threshold: -2\n", "breaker_threshold cannot be negative"},
		{"diagram format", "diagram:\n  format: jpeg\n", "invalid diagram format"},
		{"diagram direction", "diagram:\n  direction: up\n", "invalid diagram direction"},
		{"empty title", "diagram:\n  title: \"  \"\n", "title cannot be empty"},
		{"output format", "output:\n  format: xml\n", "invalid output format"},
		{"filters", "filters:\n  include_categories: [vcns]\n", "invalid filters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfigFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("LoadConfigFile() error = %v, want it to contain %q", err, tt.contains)
			}
		})
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfigFile(missing) error = nil, want error")
	}
}

func TestGetConfigPaths(t *testing.T) {
	t.Setenv("OCI_DIAGRAM_CONFIG_FILE", "/custom/config.yaml")
	paths := getConfigPaths()

	if paths[0] != "/custom/config.yaml" {
		t.Errorf("paths[0] = %q, want the environment override", paths[0])
	}
	if paths[1] != "./oci-diagram.yaml" {
		t.Errorf("paths[1] = %q", paths[1])
	}
	if paths[len(paths)-1] != "/etc/oci-diagram.yaml" {
		t.Errorf("last path = %q", paths[len(paths)-1])
	}

	t.Setenv("OCI_DIAGRAM_CONFIG_FILE", "")
	if got := getConfigPaths(); got[0] != "./oci-diagram.yaml" {
		t.Errorf("paths[0] = %q without override", got[0])
	}
}

func TestLoadConfig_UsesEnvironmentFile(t *testing.T) {
	path := writeConfigFile(t, "general:\n  timeout: 42\n")
	t.Setenv("OCI_DIAGRAM_CONFIG_FILE", path)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.General.Timeout != 42 {
		t.Errorf("Timeout = %d, want 42", config.General.Timeout)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error = %v", err)
	}

	loaded, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, getDefaultConfig()) {
		t.Errorf("round trip = %+v, want defaults", loaded)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"per_compartment_titles:", "breaker_threshold:", "include_categories:"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("generated file missing %q", key)
		}
	}
}

func TestMergeWithCLIArgs(t *testing.T) {
	config := getDefaultConfig()
	MergeWithCLIArgs(config, CLIOverrides{
		Timeout:           intPtr(30),
		LogLevel:          strPtr("debug"),
		Progress:          boolPtr(false),
		Summary:           boolPtr(true),
		FailFast:          boolPtr(true),
		Strict:            boolPtr(true),
		Profile:           strPtr("PROD"),
		OutputDir:         strPtr("/tmp/out"),
		Format:            strPtr("SVG"),
		Title:             strPtr("Acme"),
		Direction:         strPtr("tb"),
		IncludeRoot:       boolPtr(true),
		OutputFile:        strPtr("inv.tsv"),
		OutputFmt:         strPtr("TSV"),
		IncludeCategories: strPtr("compute, databases"),
		NamePattern:       strPtr("^web"),
	})

	if config.General.Timeout != 30 || config.General.LogLevel != "debug" || config.General.Progress || !config.General.Summary || !config.General.FailFast {
		t.Errorf("General = %+v", config.General)
	}
	if !config.Collector.Strict || config.Auth.Profile != "PROD" || !config.Compartments.IncludeRoot {
		t.Errorf("Collector = %+v, Auth = %+v", config.Collector, config.Auth)
	}
	if config.Diagram.OutputDir != "/tmp/out" || config.Diagram.Format != "svg" || config.Diagram.Title != "Acme" || config.Diagram.Direction != "TB" {
		t.Errorf("Diagram = %+v", config.Diagram)
	}
	if config.Output.File != "inv.tsv" || config.Output.Format != "tsv" {
		t.Errorf("Output = %+v", config.Output)
	}
	if !reflect.DeepEqual(config.Filters.IncludeCategories, []string{"compute", "databases"}) || config.Filters.NamePattern != "^web" {
		t.Errorf("Filters = %+v", config.Filters)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestMergeWithCLIArgs_UnsetFlagsKeepFileValues(t *testing.T) {
	config := getDefaultConfig()
	config.General.Timeout = 90
	config.Diagram.Title = "From File"
	config.Filters.ExcludeCategories = []string{"buckets"}

	// 未指定 (nil) や空文字のフラグは設定ファイルの値を上書きしない
	MergeWithCLIArgs(config, CLIOverrides{Title: strPtr(""), ExcludeCategories: strPtr("")})

	if config.General.Timeout != 90 || config.Diagram.Title != "From File" {
		t.Errorf("config = %+v", config)
	}
	if !reflect.DeepEqual(config.Filters.ExcludeCategories, []string{"buckets"}) {
		t.Errorf("ExcludeCategories = %v", config.Filters.ExcludeCategories)
	}
}

func TestAppConfig_Runtime(t *testing.T) {
	config := getDefaultConfig()
	config.General.Timeout = 45
	config.General.LogLevel = "verbose"
	config.General.Summary = true

	rt, err := config.Runtime()
	if err != nil {
		t.Fatalf("Runtime() error = %v", err)
	}
	want := Config{
		Timeout:     45 * time.Second,
		LogLevel:    LogLevelVerbose,
		ShowSummary: true,
	}
	if !reflect.DeepEqual(rt, want) {
		t.Errorf("Runtime() = %+v, want %+v", rt, want)
	}

	config.General.LogLevel = "loud"
	if _, err := config.Runtime(); err == nil {
		t.Error("Runtime() error = nil for an invalid log level")
	}
}

func TestLoadConfigFile_ZeroTimeoutMeansNoDeadline(t *testing.T) {
	path := writeConfigFile(t, "general:\n  timeout: 0\n")
	config, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	rt, err := config.Runtime()
	if err != nil {
		t.Fatalf("Runtime() error = %v", err)
	}
	if rt.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", rt.Timeout)
	}
}

func TestAppConfig_Options(t *testing.T) {
	config := getDefaultConfig()
	config.Compartments.IncludeRoot = true
	config.Collector.Strict = true
	config.Collector.MaxRetries = 1
	config.Collector.BreakerThreshold = 0
	config.Filters.ExcludeCategories = []string{"databases"}

	if got := config.EnumerateOptions(); got != (EnumerateOptions{IncludeRoot: true, Recursive: true, ActiveOnly: true}) {
		t.Errorf("EnumerateOptions() = %+v", got)
	}

	opts := config.CollectorOptions()
	if !opts.Strict || opts.MaxRetries != 1 || opts.BreakerThreshold != 0 {
		t.Errorf("CollectorOptions() = %+v", opts)
	}
	if opts.RetryBaseDelay != time.Second || opts.BreakerTimeout != 60*time.Second {
		t.Errorf("CollectorOptions() delays = %v, %v", opts.RetryBaseDelay, opts.BreakerTimeout)
	}
	if !reflect.DeepEqual(opts.Filters.ExcludeCategories, []string{"databases"}) {
		t.Errorf("Filters = %+v", opts.Filters)
	}
}
