package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnvironmentOverrides.
const (
	EnvGridSize    = "PERLIN_GRID_SIZE"
	EnvDomainWidth = "PERLIN_DOMAIN_WIDTH"
	EnvHeightScale = "PERLIN_HEIGHT_SCALE"
	EnvSeed        = "PERLIN_SEED"
	EnvWorkers     = "PERLIN_WORKERS"
	EnvOutputDir   = "PERLIN_OUTPUT_DIR"
	EnvServerAddr  = "PERLIN_SERVER_ADDR"
	EnvHealthPort  = "PERLIN_HEALTH_PORT"
	EnvReadTimeout = "PERLIN_READ_TIMEOUT"
)

// ApplyEnvironmentOverrides replaces config values with any PERLIN_*
// variables that are set. It stops at the first variable that does not
// parse.
func ApplyEnvironmentOverrides(config *Config) error {
	if err := overrideInt(EnvGridSize, &config.Generator.GridSize); err != nil {
		return err
	}
	if err := overrideInt(EnvDomainWidth, &config.Generator.DomainWidth); err != nil {
		return err
	}
	if err := overrideFloat(EnvHeightScale, &config.Generator.HeightScale); err != nil {
		return err
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSeed, v, err)
		}
		config.Generator.Seed = seed
	}
	if err := overrideInt(EnvWorkers, &config.Generator.Workers); err != nil {
		return err
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		config.Output.Dir = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		config.Server.Address = v
	}
	if err := overrideInt(EnvHealthPort, &config.Server.HealthPort); err != nil {
		return err
	}
	if v := os.Getenv(EnvReadTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvReadTimeout, v, err)
		}
		config.Server.ReadTimeout = Duration(d)
	}
	return nil
}

func overrideInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func overrideFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}
