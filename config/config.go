// Package config loads and validates the YAML configuration file that
// describes a search: the external scripts to run, the flag set to
// explore, and the convergence parameters.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultBenchmarkRepeats = 20
	defaultEpsilon          = 5.0
)

// FlagRecord is one compiler option as it appears in the YAML document's
// compiler.flags list. Type selects which of the type-specific fields are
// meaningful: "on-off", "range", or "list".
type FlagRecord struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	Prefix    string `yaml:"prefix"`
	OffPrefix string `yaml:"off_prefix"`

	Separator string   `yaml:"separator"`
	Min       int      `yaml:"min"`
	Max       int       `yaml:"max"`
	Default   int       `yaml:"default"`
	Values    []string `yaml:"values"`

	DependsOn    []string `yaml:"depends_on"`
	DependedOnBy []string `yaml:"depended_on_by"`
}

// Compiler describes the toolchain under test and its tunable flags.
type Compiler struct {
	Name    string       `yaml:"name"`
	Version string       `yaml:"version"`
	Flags   []FlagRecord `yaml:"flags"`
}

// Config is the fully parsed, defaulted configuration document, per the
// key table in SPEC_FULL.md 6.
type Config struct {
	QuitSignal string `yaml:"quit-signal"`

	CleanScript     string `yaml:"clean-script"`
	BuildScript     string `yaml:"build-script"`
	AccuracyTest    string `yaml:"accuracy-test"`
	PerformanceTest string `yaml:"performance-test"`

	Timeout          time.Duration `yaml:"timeout"`
	BenchmarkTimeout time.Duration `yaml:"benchmark-timeout"`

	// BenchmarkRepeats uses a pointer so Load can distinguish "key absent"
	// (default 20) from "key present and literally 0" (default 1), per
	// spec.md's own distinction between these two cases.
	BenchmarkRepeats *int `yaml:"benchmark-repeats"`

	Epsilon float64 `yaml:"epsilon"`

	Compiler Compiler `yaml:"compiler"`
}

// Repeats returns the effective benchmark repeat count after applying the
// absent-vs-zero default rule.
func (c *Config) Repeats() int {
	if c.BenchmarkRepeats == nil {
		return defaultBenchmarkRepeats
	}
	if *c.BenchmarkRepeats == 0 {
		return 1
	}
	return *c.BenchmarkRepeats
}

// Load reads and validates the YAML configuration at path. Unknown keys or
// malformed flag records produce a precise, line-level error via
// yaml.UnmarshalStrict, matching spec.md 7's configuration error policy:
// a bad config is a fatal startup error, never a partially-applied one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Epsilon == 0 {
		cfg.Epsilon = defaultEpsilon
	}
	if cfg.BuildScript == "" {
		return nil, fmt.Errorf("config: %s: build-script is required", path)
	}
	if cfg.PerformanceTest == "" {
		return nil, fmt.Errorf("config: %s: performance-test is required", path)
	}
	if len(cfg.Compiler.Flags) == 0 {
		return nil, fmt.Errorf("config: %s: compiler.flags must list at least one flag", path)
	}

	for i, f := range cfg.Compiler.Flags {
		switch f.Type {
		case "on-off", "range", "list":
		default:
			return nil, fmt.Errorf("config: %s: flag %q (index %d): unknown type %q", path, f.Name, i, f.Type)
		}
		if f.Type == "list" && len(f.Values) == 0 {
			return nil, fmt.Errorf("config: %s: flag %q: type list requires a non-empty values list", path, f.Name)
		}
	}

	return &cfg, nil
}
