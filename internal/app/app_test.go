package app_test

import (
	"context"
	"testing"

	"github.com/AHartTN/hartonomous/internal/app"
	"github.com/AHartTN/hartonomous/internal/config"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogLevelInfo},
		Substrate: config.SubstrateConfig{Driver: config.DriverMock},
	}
	cfg.Ingest.MaxNgram = 4
	cfg.Ingest.CooccurrenceWindow = 5
	cfg.Ingest.CheckInterval = 1024
	cfg.Query.GravitationalRadius = 0.05
	cfg.Walk = config.WalkConfig{Energy: 1, Decay: 0.05, Temperature: 0.7, MaxTokens: 200, Alpha: 0.3, Beta: 1}
	return cfg
}

func TestNewWithMockDriver(t *testing.T) {
	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Ingest() == nil {
		t.Error("Ingest() returned nil")
	}
	if a.Query() == nil {
		t.Error("Query() returned nil")
	}
	if a.Walk() == nil {
		t.Error("Walk() returned nil")
	}
	if a.Handles() == nil {
		t.Error("Handles() returned nil")
	}
}

func TestNewSeedsReferenceWhenRequested(t *testing.T) {
	cfg := testConfig()
	cfg.Substrate.SeedReference = true

	atoms := mock.NewAtomStore()
	store := mock.NewStore()

	a, err := app.New(context.Background(), cfg, app.WithStore(atoms, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Store() != store {
		t.Error("Store() did not return the injected store")
	}

	sealed, err := atoms.Sealed(context.Background())
	if err != nil {
		t.Fatalf("Sealed: %v", err)
	}
	if !sealed {
		t.Error("expected atom foundation to be sealed after seeding")
	}
}

func TestNewSkipsSeedWhenNotRequested(t *testing.T) {
	cfg := testConfig()
	cfg.Substrate.SeedReference = false

	atoms := mock.NewAtomStore()
	store := mock.NewStore()

	if _, err := app.New(context.Background(), cfg, app.WithStore(atoms, store)); err != nil {
		t.Fatalf("New: %v", err)
	}

	sealed, err := atoms.Sealed(context.Background())
	if err != nil {
		t.Fatalf("Sealed: %v", err)
	}
	if sealed {
		t.Error("expected atom foundation to remain unsealed")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
