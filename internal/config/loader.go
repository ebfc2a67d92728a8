package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued tunables with the documented defaults
// (spec.md §6) so a config file only needs to override what it cares about.
func applyDefaults(cfg *Config) {
	if cfg.Substrate.Driver == "" {
		cfg.Substrate.Driver = DriverPostgres
	}
	if cfg.Ingest.MaxNgram == 0 {
		cfg.Ingest.MaxNgram = 7
	}
	if cfg.Ingest.CooccurrenceWindow == 0 {
		cfg.Ingest.CooccurrenceWindow = 5
	}
	if cfg.Ingest.CheckInterval == 0 {
		cfg.Ingest.CheckInterval = 1024
	}
	if cfg.Query.GravitationalRadius == 0 {
		cfg.Query.GravitationalRadius = 0.05
	}
	if cfg.Walk.Energy == 0 {
		cfg.Walk.Energy = 1.0
	}
	if cfg.Walk.Decay == 0 {
		cfg.Walk.Decay = 0.05
	}
	if cfg.Walk.Temperature == 0 {
		cfg.Walk.Temperature = 0.7
	}
	if cfg.Walk.MaxTokens == 0 {
		cfg.Walk.MaxTokens = 200
	}
	if cfg.Walk.Alpha == 0 {
		cfg.Walk.Alpha = 0.3
	}
	if cfg.Walk.Beta == 0 {
		cfg.Walk.Beta = 1.0
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "hartonomousd"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Substrate.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("substrate.driver %q is invalid; valid values: postgres, mock", cfg.Substrate.Driver))
	}
	if cfg.Substrate.Driver == DriverPostgres && cfg.Substrate.PostgresDSN == "" {
		errs = append(errs, errors.New("substrate.postgres_dsn is required when substrate.driver is postgres"))
	}

	if cfg.Ingest.MaxNgram < 1 {
		errs = append(errs, fmt.Errorf("ingest.max_ngram %d must be >= 1", cfg.Ingest.MaxNgram))
	}
	if cfg.Ingest.CooccurrenceWindow < 1 {
		errs = append(errs, fmt.Errorf("ingest.cooccurrence_window %d must be >= 1", cfg.Ingest.CooccurrenceWindow))
	}

	if cfg.Query.GravitationalRadius <= 0 {
		errs = append(errs, fmt.Errorf("query.gravitational_radius %.4f must be > 0", cfg.Query.GravitationalRadius))
	}

	if cfg.Walk.Energy <= 0 {
		errs = append(errs, fmt.Errorf("walk.energy %.4f must be > 0", cfg.Walk.Energy))
	}
	if cfg.Walk.Decay < 0 {
		errs = append(errs, fmt.Errorf("walk.decay %.4f must be >= 0", cfg.Walk.Decay))
	}
	if cfg.Walk.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("walk.temperature %.4f must be > 0", cfg.Walk.Temperature))
	}
	if cfg.Walk.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("walk.max_tokens %d must be >= 1", cfg.Walk.MaxTokens))
	}
	if cfg.Walk.TopP < 0 || cfg.Walk.TopP > 1 {
		errs = append(errs, fmt.Errorf("walk.top_p %.4f must be in [0, 1]", cfg.Walk.TopP))
	}

	return errors.Join(errs...)
}
