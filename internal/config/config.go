package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for go-class-shrink
type Config struct {
	// Inputs are class files, jars or directories holding program classes
	Inputs []string `yaml:"inputs" env:"GCS_INPUTS"`

	// Libraries are class files, jars or directories holding library classes
	Libraries []string `yaml:"libraries" env:"GCS_LIBRARIES"`

	// Output is the directory the shrunk classes are written to
	Output string `yaml:"output" env:"GCS_OUTPUT"`

	// Keep lists keep rules, one rule per entry
	Keep []string `yaml:"keep"`

	// KeepFiles lists files holding more keep rules
	KeepFiles []string `yaml:"keep_files" env:"GCS_KEEP_FILES"`

	// AssumeNoSideEffects lists assumenosideeffects rules added to the
	// built-in table of side-effect-free library methods
	AssumeNoSideEffects []string `yaml:"assume_no_side_effects"`

	// KeepAttributes is a comma separated list of optional attribute names to keep
	KeepAttributes string `yaml:"keep_attributes" env:"GCS_KEEP_ATTRIBUTES"`

	// Reflection enables detection of Class.forName and similar reflective uses
	Reflection bool `yaml:"reflection" env:"GCS_REFLECTION"`

	// Optimize runs the evaluator over every surviving method
	Optimize bool `yaml:"optimize" env:"GCS_OPTIMIZE"`

	// Parallelism bounds concurrent evaluation; 0 means one worker per CPU
	Parallelism int `yaml:"parallelism" env:"GCS_PARALLELISM"`

	// ReportPath is where the msgpack report of the last run is stored
	ReportPath string `yaml:"report_path" env:"GCS_REPORT_PATH"`

	// Logging
	Verbose bool `yaml:"verbose" env:"GCS_VERBOSE"`
	LogJSON bool `yaml:"log_json" env:"GCS_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Output:         "shrunk",
		KeepAttributes: "",
		Reflection:     true,
		Optimize:       true,
		Parallelism:    0,
		ReportPath:     ".gcs/report.msgpack",
		Verbose:        false,
		LogJSON:        false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.gcs/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gcs/config.yaml"
	}
	return filepath.Join(home, ".gcs", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gcs/config.yaml)
func ProjectConfigFilePath() string {
	return ".gcs/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.gcs/config.yaml)
// 3. Global config (~/.gcs/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GCS_INPUTS"); v != "" {
		cfg.Inputs = splitList(v)
	}
	if v := os.Getenv("GCS_LIBRARIES"); v != "" {
		cfg.Libraries = splitList(v)
	}
	if v := os.Getenv("GCS_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("GCS_KEEP_FILES"); v != "" {
		cfg.KeepFiles = splitList(v)
	}
	if v := os.Getenv("GCS_KEEP_ATTRIBUTES"); v != "" {
		cfg.KeepAttributes = v
	}
	if v := os.Getenv("GCS_REFLECTION"); v != "" {
		cfg.Reflection = parseBool(v)
	}
	if v := os.Getenv("GCS_OPTIMIZE"); v != "" {
		cfg.Optimize = parseBool(v)
	}
	if v := os.Getenv("GCS_PARALLELISM"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.Parallelism = i
		}
	}
	if v := os.Getenv("GCS_REPORT_PATH"); v != "" {
		cfg.ReportPath = v
	}
	if v := os.Getenv("GCS_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("GCS_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be non-negative")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	for _, in := range c.Inputs {
		if in == c.Output {
			return fmt.Errorf("output %s is also an input", c.Output)
		}
	}
	for _, rule := range c.Keep {
		if strings.TrimSpace(rule) == "" {
			return fmt.Errorf("keep rules must not be empty")
		}
	}
	return nil
}

// Rules returns the keep rules of the config followed by the contents of
// every keep file.
func (c *Config) Rules() ([]string, error) {
	rules := append([]string(nil), c.Keep...)
	for _, path := range c.KeepFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read keep file %s: %w", path, err)
		}
		rules = append(rules, string(data))
	}
	return rules, nil
}

// splitList splits a path list on the OS list separator or commas.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == filepath.ListSeparator
	}) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}
