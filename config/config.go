// Package config manages application configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment identifies the runtime environment where berth operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

type workerKind int

const (
	workerUnset workerKind = iota
	workerExplicit
	workerAuto
	workerDefault
)

const defaultWorkerCount = 4

// WorkerSetting encapsulates runner worker sizing allowing both numeric and
// symbolic values.
type WorkerSetting struct {
	kind  workerKind
	value int
}

// UnmarshalYAML supports integer, "auto", and "default" values for workers.
func (s *WorkerSetting) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = WorkerSetting{kind: workerUnset, value: 0}
		return nil
	}

	text := strings.TrimSpace(node.Value)
	if text == "" {
		s.kind = workerUnset
		s.value = 0
		return nil
	}

	switch strings.ToLower(text) {
	case "auto":
		s.kind = workerAuto
		s.value = 0
		return nil
	case "default":
		s.kind = workerDefault
		s.value = 0
		return nil
	}

	val, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("workers: invalid value %q", node.Value)
	}
	if val <= 0 {
		return fmt.Errorf("workers: numeric value must be > 0")
	}
	s.kind = workerExplicit
	s.value = val
	return nil
}

// Count returns the effective worker count derived from the setting.
func (s WorkerSetting) Count() int {
	switch s.kind {
	case workerExplicit:
		return s.value
	case workerAuto:
		if cores := runtime.NumCPU(); cores > 0 {
			return cores
		}
		return defaultWorkerCount
	case workerDefault, workerUnset:
		return defaultWorkerCount
	default:
		return defaultWorkerCount
	}
}

// PoolSpec declares a named pool and its fixed handle capacity.
type PoolSpec struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

// RunnerConfig sizes the leased task runner and its submission pacing.
type RunnerConfig struct {
	Workers       WorkerSetting `yaml:"workers"`
	Queue         int           `yaml:"queue"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
}

// TelemetryConfig configures OTLP metric export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
}

// AppConfig is the unified berth daemon configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Pools       []PoolSpec      `yaml:"pools"`
	Runner      RunnerConfig    `yaml:"runner"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when no file is present.
func Default() AppConfig {
	return AppConfig{
		Environment: EnvDev,
		Pools: []PoolSpec{
			{Name: "workers", Capacity: 8},
		},
		Runner: RunnerConfig{
			Workers:       WorkerSetting{kind: workerDefault, value: 0},
			Queue:         32,
			RatePerSecond: 50,
			Burst:         10,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "berthd",
			OTLPInsecure: false,
		},
	}
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(configPath string) (AppConfig, error) {
	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads the config file when it exists, otherwise returns the
// defaults. The boolean reports whether a file was read.
func LoadOrDefault(configPath string) (AppConfig, bool, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	return AppConfig{}, false, err
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	for i, spec := range c.Pools {
		c.Pools[i].Name = strings.TrimSpace(spec.Name)
	}

	if c.Runner.Queue < 0 {
		c.Runner.Queue = 0
	}
	if c.Runner.Burst <= 0 {
		c.Runner.Burst = 1
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "berthd"
	}
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	seen := make(map[string]struct{}, len(c.Pools))
	for _, spec := range c.Pools {
		if spec.Name == "" {
			return fmt.Errorf("pool name required")
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("pool %s declared twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if spec.Capacity <= 0 {
			return fmt.Errorf("pool %s capacity must be >0", spec.Name)
		}
	}

	if c.Runner.Workers.Count() <= 0 {
		return fmt.Errorf("runner workers must be >0")
	}
	if c.Runner.RatePerSecond < 0 {
		return fmt.Errorf("runner ratePerSecond must be >= 0")
	}

	if c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry serviceName required")
	}

	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
