// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// Config is the top-level go-perlin configuration document.
type Config struct {
	Generator GeneratorConfig `json:"generator"`
	Output    OutputConfig    `json:"output"`
	Server    ServerConfig    `json:"server"`
	Export    ExportConfig    `json:"export"`
}

// GeneratorConfig controls noise and mesh generation.
type GeneratorConfig struct {
	GridSize    int     `json:"gridSize"`
	DomainWidth int     `json:"domainWidth"`
	HeightScale float64 `json:"heightScale"`
	Seed        uint64  `json:"seed"`
	Workers     int     `json:"workers"`
	// Rotation rotates every gradient by this many radians before sampling.
	Rotation    float64 `json:"rotation"`
	UnitNormals bool    `json:"unitNormals"`
	SkipMesh    bool    `json:"skipMesh"`
}

// OutputConfig selects which artifacts the CLI writes.
type OutputConfig struct {
	Dir        string `json:"dir"`
	PNG        bool   `json:"png"`
	TIFF       bool   `json:"tiff"`
	OBJ        bool   `json:"obj"`
	JSON       bool   `json:"json"`
	ASCII      bool   `json:"ascii"`
	ASCIIWidth int    `json:"asciiWidth"`
}

// ServerConfig contains websocket server configuration.
type ServerConfig struct {
	Address           string `json:"address"`
	HealthPort        int    `json:"healthPort"`
	MaxGridSize       int    `json:"maxGridSize"`
	MaxDomainWidth    int    `json:"maxDomainWidth"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
	// MaxInFlightSamples caps heightfield samples generated concurrently
	// across all connections.
	MaxInFlightSamples int64    `json:"maxInFlightSamples"`
	ReadTimeout        Duration `json:"readTimeout"`
	WriteTimeout       Duration `json:"writeTimeout"`
}

// ExportConfig tunes the circuit breaker guarding artifact writes.
type ExportConfig struct {
	MaxRequests         uint32   `json:"maxRequests"`
	Interval            Duration `json:"interval"`
	Timeout             Duration `json:"timeout"`
	MaxConsecutiveFails uint32   `json:"maxConsecutiveFails"`
	Retries             int      `json:"retries"`
	RetryDelay          Duration `json:"retryDelay"`
}

// Duration is a time.Duration that reads and writes JSON as "1m30s".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LoadConfig loads a configuration from a file. Fields missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns the default configuration: a 20x20 lattice over a
// 500 sample domain with heights scaled by 180.
func DefaultConfig() *Config {
	return &Config{
		Generator: GeneratorConfig{
			GridSize:    20,
			DomainWidth: 500,
			HeightScale: 180,
			Seed:        0,
			Workers:     0,
		},
		Output: OutputConfig{
			Dir:        "out",
			PNG:        true,
			TIFF:       false,
			OBJ:        true,
			JSON:       false,
			ASCII:      false,
			ASCIIWidth: 80,
		},
		Server: ServerConfig{
			Address:            "localhost:4570",
			HealthPort:         8080,
			MaxGridSize:        64,
			MaxDomainWidth:     1024,
			RequestsPerMinute:  60,
			MaxInFlightSamples: 4 * 1024 * 1024,
			ReadTimeout:        Duration(30 * time.Second),
			WriteTimeout:       Duration(30 * time.Second),
		},
		Export: ExportConfig{
			MaxRequests:         1,
			Interval:            Duration(60 * time.Second),
			Timeout:             Duration(30 * time.Second),
			MaxConsecutiveFails: 3,
			Retries:             3,
			RetryDelay:          Duration(500 * time.Millisecond),
		},
	}
}

// Validate checks the generator settings and reports every problem found.
func (g GeneratorConfig) Validate() error {
	var errs []error
	if g.GridSize < 1 {
		errs = append(errs, fmt.Errorf("gridSize must be at least 1, got %d", g.GridSize))
	}
	if g.GridSize >= 1 && g.DomainWidth/g.GridSize < 1 {
		errs = append(errs, fmt.Errorf("domainWidth %d must be at least gridSize %d", g.DomainWidth, g.GridSize))
	}
	if math.IsNaN(g.HeightScale) || math.IsInf(g.HeightScale, 0) {
		errs = append(errs, fmt.Errorf("heightScale must be finite"))
	}
	if math.IsNaN(g.Rotation) || math.IsInf(g.Rotation, 0) {
		errs = append(errs, fmt.Errorf("rotation must be finite"))
	}
	if g.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", g.Workers))
	}
	return errors.Join(errs...)
}

// Validate checks the whole document.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Generator.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("generator: %w", err))
	}
	if c.Output.ASCIIWidth < 0 {
		errs = append(errs, fmt.Errorf("output: asciiWidth must not be negative"))
	}
	if c.Server.MaxGridSize < 1 || c.Server.MaxDomainWidth < 1 {
		errs = append(errs, fmt.Errorf("server: maxGridSize and maxDomainWidth must be positive"))
	}
	if c.Server.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("server: requestsPerMinute must be positive"))
	}
	if maxSamples := int64(c.Server.MaxDomainWidth) * int64(c.Server.MaxDomainWidth); c.Server.MaxInFlightSamples < maxSamples {
		errs = append(errs, fmt.Errorf("server: maxInFlightSamples %d cannot fit a %dx%d request", c.Server.MaxInFlightSamples, c.Server.MaxDomainWidth, c.Server.MaxDomainWidth))
	}
	if c.Server.HealthPort < 0 || c.Server.HealthPort > 65535 {
		errs = append(errs, fmt.Errorf("server: healthPort %d out of range", c.Server.HealthPort))
	}
	if c.Export.Retries < 1 {
		errs = append(errs, fmt.Errorf("export: retries must be at least 1"))
	}
	if c.Export.MaxConsecutiveFails < 1 {
		errs = append(errs, fmt.Errorf("export: maxConsecutiveFails must be at least 1"))
	}
	return errors.Join(errs...)
}
