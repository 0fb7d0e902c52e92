// Package validation checks generation requests arriving over the network
// before they reach the generator.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opd-ai/go-perlin/pkg/config"
)

// MaxMessageSize caps a single inbound request.
const MaxMessageSize = 4 * 1024

var (
	// ErrInvalidRequest marks a request that fails validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited marks a request rejected by the rate limiter.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Limits bounds what a remote client may ask for.
type Limits struct {
	MaxGridSize    int
	MaxDomainWidth int
}

// LimitsFromConfig extracts request limits from the server configuration.
func LimitsFromConfig(cfg config.ServerConfig) Limits {
	return Limits{
		MaxGridSize:    cfg.MaxGridSize,
		MaxDomainWidth: cfg.MaxDomainWidth,
	}
}

// GenerateParams are the numeric fields of a generation request.
type GenerateParams struct {
	GridSize    int
	DomainWidth int
	HeightScale float64
	Rotation    float64
}

// ValidateGenerateParams checks p against limits. All problems are reported
// together.
func ValidateGenerateParams(p GenerateParams, limits Limits) error {
	var errs []error
	if p.GridSize < 1 || p.GridSize > limits.MaxGridSize {
		errs = append(errs, fmt.Errorf("gridSize %d out of range [1, %d]", p.GridSize, limits.MaxGridSize))
	}
	if p.DomainWidth < 1 || p.DomainWidth > limits.MaxDomainWidth {
		errs = append(errs, fmt.Errorf("domainWidth %d out of range [1, %d]", p.DomainWidth, limits.MaxDomainWidth))
	}
	if p.GridSize >= 1 && p.DomainWidth < p.GridSize {
		errs = append(errs, fmt.Errorf("domainWidth %d must be at least gridSize %d", p.DomainWidth, p.GridSize))
	}
	if math.IsNaN(p.HeightScale) || math.IsInf(p.HeightScale, 0) {
		errs = append(errs, errors.New("heightScale must be finite"))
	}
	if math.IsNaN(p.Rotation) || math.IsInf(p.Rotation, 0) {
		errs = append(errs, errors.New("rotation must be finite"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

// MessageValidator checks raw messages for size, syntax and rate.
type MessageValidator struct {
	rateLimiter *RateLimiter
	perMinute   int
}

// NewMessageValidator creates a validator allowing perMinute messages per
// client.
func NewMessageValidator(perMinute int) *MessageValidator {
	return &MessageValidator{
		rateLimiter: NewRateLimiter(perMinute, time.Minute),
		perMinute:   perMinute,
	}
}

// Close releases the rate limiter.
func (v *MessageValidator) Close() {
	if v.rateLimiter != nil {
		v.rateLimiter.Close()
	}
}

// ValidateMessage checks a raw message from clientID.
func (v *MessageValidator) ValidateMessage(data []byte, clientID string) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: message too large: %d bytes (max %d)", ErrInvalidRequest, len(data), MaxMessageSize)
	}

	if !json.Valid(data) {
		return fmt.Errorf("%w: invalid JSON format", ErrInvalidRequest)
	}

	if !v.rateLimiter.Allow(clientID) {
		return fmt.Errorf("%w: max %d messages per minute", ErrRateLimited, v.perMinute)
	}

	return nil
}
