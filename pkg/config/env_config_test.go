package config

import (
	"strings"
	"testing"
	"time"
)

func TestApplyEnvironmentOverrides(t *testing.T) {
	t.Run("NoVariables", func(t *testing.T) {
		config := DefaultConfig()
		if err := ApplyEnvironmentOverrides(config); err != nil {
			t.Fatalf("ApplyEnvironmentOverrides() failed: %v", err)
		}
		if config.Generator != DefaultConfig().Generator {
			t.Errorf("Generator changed without overrides: %+v", config.Generator)
		}
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv(EnvGridSize, "8")
		t.Setenv(EnvDomainWidth, "256")
		t.Setenv(EnvHeightScale, "42.5")
		t.Setenv(EnvSeed, "18446744073709551615")
		t.Setenv(EnvWorkers, "2")
		t.Setenv(EnvOutputDir, "/tmp/terrain")
		t.Setenv(EnvServerAddr, "0.0.0.0:9000")
		t.Setenv(EnvHealthPort, "9001")
		t.Setenv(EnvReadTimeout, "45s")

		config := DefaultConfig()
		if err := ApplyEnvironmentOverrides(config); err != nil {
			t.Fatalf("ApplyEnvironmentOverrides() failed: %v", err)
		}

		if config.Generator.GridSize != 8 {
			t.Errorf("Expected GridSize 8, got %d", config.Generator.GridSize)
		}
		if config.Generator.DomainWidth != 256 {
			t.Errorf("Expected DomainWidth 256, got %d", config.Generator.DomainWidth)
		}
		if config.Generator.HeightScale != 42.5 {
			t.Errorf("Expected HeightScale 42.5, got %f", config.Generator.HeightScale)
		}
		if config.Generator.Seed != 18446744073709551615 {
			t.Errorf("Expected max uint64 seed, got %d", config.Generator.Seed)
		}
		if config.Generator.Workers != 2 {
			t.Errorf("Expected Workers 2, got %d", config.Generator.Workers)
		}
		if config.Output.Dir != "/tmp/terrain" {
			t.Errorf("Expected Dir '/tmp/terrain', got '%s'", config.Output.Dir)
		}
		if config.Server.Address != "0.0.0.0:9000" {
			t.Errorf("Expected Address '0.0.0.0:9000', got '%s'", config.Server.Address)
		}
		if config.Server.HealthPort != 9001 {
			t.Errorf("Expected HealthPort 9001, got %d", config.Server.HealthPort)
		}
		if config.Server.ReadTimeout.Std() != 45*time.Second {
			t.Errorf("Expected ReadTimeout 45s, got %v", config.Server.ReadTimeout.Std())
		}
	})

	t.Run("InvalidValues", func(t *testing.T) {
		tests := []struct {
			key   string
			value string
		}{
			{EnvGridSize, "twenty"},
			{EnvDomainWidth, "1.5"},
			{EnvHeightScale, "tall"},
			{EnvSeed, "-1"},
			{EnvWorkers, "many"},
			{EnvHealthPort, "http"},
			{EnvReadTimeout, "30"},
		}

		for _, tt := range tests {
			t.Run(tt.key, func(t *testing.T) {
				t.Setenv(tt.key, tt.value)
				err := ApplyEnvironmentOverrides(DefaultConfig())
				if err == nil {
					t.Fatalf("Expected error for %s=%q", tt.key, tt.value)
				}
				if !strings.Contains(err.Error(), tt.key) {
					t.Errorf("Error %q does not name %s", err, tt.key)
				}
			})
		}
	})
}
