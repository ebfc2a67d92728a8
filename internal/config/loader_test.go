package config_test

import (
	"strings"
	"testing"

	"github.com/AHartTN/hartonomous/internal/config"
)

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{LogLevel: "verbose"},
		Substrate: config.SubstrateConfig{Driver: config.DriverMock},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error %q does not mention log_level", err)
	}
}

func TestValidateRejectsOutOfRangeTunables(t *testing.T) {
	cfg := &config.Config{
		Substrate: config.SubstrateConfig{Driver: config.DriverMock},
		Ingest:    config.IngestConfig{MaxNgram: 0, CooccurrenceWindow: 5},
		Query:     config.QueryConfig{GravitationalRadius: 0.05},
		Walk: config.WalkConfig{
			Energy:      1,
			Temperature: 0.7,
			MaxTokens:   200,
			TopP:        1.5,
		},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "max_ngram") {
		t.Errorf("error %q does not mention max_ngram", err)
	}
	if !strings.Contains(err.Error(), "top_p") {
		t.Errorf("error %q does not mention top_p", err)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("substrate:\n  driver: mock\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate rejected defaulted config: %v", err)
	}
}
