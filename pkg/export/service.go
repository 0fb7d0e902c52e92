// Package export writes generated artifacts to disk through a circuit
// breaker, so a failing volume stops a batch quickly instead of stalling
// every run on retries.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/event"
	"github.com/opd-ai/go-perlin/pkg/logging"
)

// ErrNoRetries is returned when the service is configured with zero attempts.
var ErrNoRetries = errors.New("export: retries must be at least 1")

// WriteFunc produces an artifact's bytes.
type WriteFunc func(w io.Writer) error

// Operation is a unit of work guarded by the breaker.
type Operation func() error

// Service wraps artifact writes with circuit breaker and retry handling.
type Service struct {
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
	bus     *event.Bus
	cfg     config.ExportConfig
	runID   string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithEventBus publishes an ArtifactWritten event for every file written.
func WithEventBus(bus *event.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithRunID tags published events with the run that produced them.
func WithRunID(runID string) Option {
	return func(s *Service) { s.runID = runID }
}

// NewService creates a Service with breaker settings taken from cfg.
func NewService(cfg config.ExportConfig, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger()
	}

	settings := gobreaker.Settings{
		Name:        "perlin-export",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Std(),
		Timeout:     cfg.Timeout.Std(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	s.breaker = gobreaker.NewCircuitBreaker(settings)
	return s
}

// Execute runs op through the circuit breaker. An open breaker fails
// immediately with gobreaker.ErrOpenState.
func (s *Service) Execute(ctx context.Context, op Operation) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		s.logger.LogWithContext(ctx, slog.LevelError, "circuit breaker execution failed",
			"error", err,
			"state", s.breaker.State().String(),
		)
		return fmt.Errorf("circuit breaker: %w", err)
	}
	return nil
}

// ExecuteWithRetry runs op up to cfg.Retries times with a linearly growing
// delay. It gives up early when the breaker opens or ctx is done.
func (s *Service) ExecuteWithRetry(ctx context.Context, op Operation) error {
	maxRetries := s.cfg.Retries
	if maxRetries < 1 {
		return ErrNoRetries
	}
	baseDelay := s.cfg.RetryDelay.Std()

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry cancelled: %w", ctxErr)
		}

		err = s.Execute(ctx, op)
		if err == nil {
			return nil
		}

		if s.breaker.State() == gobreaker.StateOpen {
			s.logger.Warn(ctx, "circuit breaker is open, skipping retries",
				"attempt", attempt+1,
				"max_retries", maxRetries,
			)
			return err
		}

		if attempt == maxRetries-1 {
			break
		}

		delay := time.Duration(attempt+1) * baseDelay
		s.logger.Warn(ctx, "operation failed, retrying",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	s.logger.Error(ctx, "all retry attempts failed", err, "attempts", maxRetries)
	return fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, err)
}

// WriteFile writes an artifact atomically: write produces the content into
// a temporary file in the target directory, which is renamed over path once
// complete. The whole write is retried through the breaker.
func (s *Service) WriteFile(ctx context.Context, path, kind string, write WriteFunc) error {
	var size int64
	err := s.ExecuteWithRetry(ctx, func() error {
		n, err := writeAtomic(path, write)
		size = n
		return err
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	s.logger.Info(ctx, "Artifact written", "path", path, "kind", kind, "bytes", size)
	s.bus.Publish(event.NewArtifactEvent(s, s.runID, path, kind, size))
	return nil
}

func writeAtomic(path string, write WriteFunc) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	counter := &countingWriter{w: tmp}
	if err := write(counter); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// GetState returns the current state of the circuit breaker.
func (s *Service) GetState() gobreaker.State {
	return s.breaker.State()
}

// GetCounts returns the breaker's current failure/success counts.
func (s *Service) GetCounts() gobreaker.Counts {
	return s.breaker.Counts()
}
