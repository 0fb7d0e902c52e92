// Package server serves terrain generation over a websocket. Each text
// message on /ws is a GenerateRequest; each reply is a GenerateResponse.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/event"
	"github.com/opd-ai/go-perlin/pkg/health"
	"github.com/opd-ai/go-perlin/pkg/logging"
	"github.com/opd-ai/go-perlin/pkg/pipeline"
	"github.com/opd-ai/go-perlin/pkg/resource"
	"github.com/opd-ai/go-perlin/pkg/validation"
)

// ErrNotStarted is returned by Shutdown before Start.
var ErrNotStarted = errors.New("server not started")

// Server is the websocket generation server.
type Server struct {
	cfg       config.ServerConfig
	workers   int
	logger    *logging.Logger
	bus       *event.Bus
	limits    validation.Limits
	validator *validation.MessageValidator
	health    *health.HealthChecker
	budget    *resource.Budget
	upgrader  websocket.Upgrader

	httpServer *http.Server

	mu       sync.RWMutex
	listener net.Listener
	conns    map[*websocket.Conn]struct{}

	// baseCtx is cancelled on Shutdown to stop in-flight generations.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithEventBus forwards generation events from every request to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(s *Server) { s.bus = bus }
}

// New creates a server from cfg. Generator workers per request come from
// cfg.Generator.Workers.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     cfg.Server,
		workers: cfg.Generator.Workers,
		limits:  validation.LimitsFromConfig(cfg.Server),
		conns:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger()
	}
	s.validator = validation.NewMessageValidator(cfg.Server.RequestsPerMinute)
	s.budget = resource.NewBudget(cfg.Server.MaxInFlightSamples, s.logger)
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	s.health = health.NewHealthChecker()
	genCheck, err := health.NewGeneratorHealthCheck()
	if err != nil {
		return nil, err
	}
	s.health.AddCheck(genCheck)
	s.health.AddCheck(health.NewListenerHealthCheck(s.Addr))
	s.health.AddCheck(resource.NewBudgetHealthCheck(s.budget))

	return s, nil
}

// Handler returns the HTTP handler serving /ws, /health and /ready.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.health.Register(mux)
	return mux
}

// Health returns the server's health checker.
func (s *Server) Health() *health.HealthChecker {
	return s.health
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout.Std(),
		WriteTimeout: s.cfg.WriteTimeout.Std(),
	}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "Server stopped unexpectedly", err)
		}
	}()

	s.logger.Info(ctx, "Generation server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" when not listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections, cancels running generations,
// closes open websockets and waits for their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.listener = nil
	s.cancel()
	s.mu.Unlock()
	defer s.validator.Close()

	if srv == nil {
		return ErrNotStarted
	}
	err := srv.Shutdown(ctx)

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}

	s.logger.Info(ctx, "Generation server stopped")
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	clientID := clientKey(r.RemoteAddr)
	logger := s.logger.With("client", clientID)
	logger.Info(r.Context(), "Client connected")

	conn.SetReadLimit(validation.MaxMessageSize)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn(r.Context(), "Client read failed", "error", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp := s.handleMessage(s.baseCtx, logger, clientID, data)
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn(r.Context(), "Client write failed", "error", err)
			break
		}
	}

	logger.Info(r.Context(), "Client disconnected")
}

// handleMessage validates and executes one request. Failures become error
// responses; the connection stays open.
func (s *Server) handleMessage(ctx context.Context, logger *logging.Logger, clientID string, data []byte) GenerateResponse {
	runID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, runID)

	if err := s.validator.ValidateMessage(data, clientID); err != nil {
		logger.Warn(ctx, "Request rejected", "error", err)
		return GenerateResponse{Error: err.Error()}
	}

	var req GenerateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return GenerateResponse{Error: fmt.Sprintf("%v: %v", validation.ErrInvalidRequest, err)}
	}
	fail := func(err error) GenerateResponse {
		return GenerateResponse{RequestID: req.RequestID, Error: err.Error()}
	}

	if err := validation.ValidateGenerateParams(req.Params(), s.limits); err != nil {
		logger.Warn(ctx, "Request rejected", "error", err, "request_id", req.RequestID)
		return fail(err)
	}

	// The domain is rounded down to a whole number of cells.
	side := req.DomainWidth / req.GridSize * req.GridSize
	release, err := s.budget.Acquire(ctx, resource.Samples(side))
	if err != nil {
		return fail(err)
	}
	defer release()

	gen, err := pipeline.New(req.GeneratorConfig(s.workers),
		pipeline.WithLogger(logger),
		pipeline.WithEventBus(s.bus),
	)
	if err != nil {
		return fail(err)
	}
	res, err := gen.Run(ctx)
	if err != nil {
		return fail(err)
	}

	return GenerateResponse{
		RunID:       res.RunID,
		RequestID:   req.RequestID,
		Rows:        res.Heightfield.Rows(),
		Cols:        res.Heightfield.Cols(),
		CellWidth:   res.CellWidth,
		Heightfield: res.Heightfield,
		Mesh:        res.Mesh,
		ElapsedMs:   float64(res.Elapsed.Microseconds()) / 1000,
	}
}

// clientKey identifies a client by host so reconnects share a rate limit.
func clientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
