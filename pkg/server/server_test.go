package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/event"
	"github.com/opd-ai/go-perlin/pkg/logging"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.MaxGridSize = 8
	cfg.Server.MaxDomainWidth = 64
	cfg.Server.RequestsPerMinute = 100
	cfg.Generator.Workers = 2
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Nop())}, opts...)
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.validator.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req any) GenerateResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var resp GenerateResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return resp
}

func TestServer_Generate(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	conn := dial(t, ts)

	resp := roundTrip(t, conn, GenerateRequest{
		RequestID:   "r1",
		GridSize:    4,
		DomainWidth: 32,
		HeightScale: 10,
		Seed:        99,
		Mesh:        true,
	})

	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.RequestID != "r1" || resp.RunID == "" {
		t.Errorf("ids not set: %+v", resp)
	}
	if resp.Rows != 32 || resp.Cols != 32 || resp.CellWidth != 8 {
		t.Errorf("shape = %dx%d cell %d, expected 32x32 cell 8", resp.Rows, resp.Cols, resp.CellWidth)
	}
	if len(resp.Heightfield) != 32 || len(resp.Heightfield[0]) != 32 {
		t.Fatalf("heightfield has wrong shape")
	}
	for _, row := range resp.Heightfield {
		for _, v := range row {
			if v < 0 || v > 1 {
				t.Fatalf("value %v outside [0, 1]", v)
			}
		}
	}
	if resp.Mesh == nil || resp.Mesh.VertexCount() != 31*31*6 {
		t.Errorf("unexpected mesh: %v", resp.Mesh)
	}
}

func TestServer_SameSeedSameTerrain(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	conn := dial(t, ts)

	req := GenerateRequest{GridSize: 2, DomainWidth: 8, Seed: 5}
	a := roundTrip(t, conn, req)
	b := roundTrip(t, conn, req)

	if a.Mesh != nil {
		t.Error("mesh returned without being requested")
	}
	for y := range a.Heightfield {
		for x := range a.Heightfield[y] {
			if a.Heightfield[y][x] != b.Heightfield[y][x] {
				t.Fatalf("sample (%d, %d) differs", y, x)
			}
		}
	}
	if a.RunID == b.RunID {
		t.Error("expected distinct run IDs")
	}
}

func TestServer_RejectsInvalidRequests(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	conn := dial(t, ts)

	tests := []struct {
		name        string
		req         any
		errContains string
	}{
		{"grid too large", GenerateRequest{RequestID: "a", GridSize: 9, DomainWidth: 64}, "gridSize 9"},
		{"domain too large", GenerateRequest{RequestID: "b", GridSize: 4, DomainWidth: 65}, "domainWidth 65"},
		{"wrong field type", map[string]any{"gridSize": "big"}, "invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, conn, tt.req)
			if !strings.Contains(resp.Error, tt.errContains) {
				t.Errorf("error = %q, should contain %q", resp.Error, tt.errContains)
			}
			if resp.Heightfield != nil {
				t.Error("heightfield returned with an error")
			}
		})
	}

	// The connection survives rejected requests.
	resp := roundTrip(t, conn, GenerateRequest{GridSize: 1, DomainWidth: 4})
	if resp.Error != "" {
		t.Errorf("unexpected error after rejections: %s", resp.Error)
	}
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RequestsPerMinute = 2
	_, ts := newTestServer(t, cfg)
	conn := dial(t, ts)

	req := GenerateRequest{GridSize: 1, DomainWidth: 2}
	for i := 0; i < 2; i++ {
		if resp := roundTrip(t, conn, req); resp.Error != "" {
			t.Fatalf("request %d rejected: %s", i+1, resp.Error)
		}
	}
	resp := roundTrip(t, conn, req)
	if !strings.Contains(resp.Error, "rate limit") {
		t.Errorf("error = %q, expected rate limit", resp.Error)
	}
}

func TestServer_ForwardsEvents(t *testing.T) {
	bus := event.NewEventBus()
	var mu sync.Mutex
	sampled := 0
	bus.Subscribe(event.HeightfieldSampled, func(event.Event) {
		mu.Lock()
		sampled++
		mu.Unlock()
	})

	_, ts := newTestServer(t, testConfig(), WithEventBus(bus))
	conn := dial(t, ts)
	roundTrip(t, conn, GenerateRequest{GridSize: 2, DomainWidth: 8})

	mu.Lock()
	defer mu.Unlock()
	if sampled != 1 {
		t.Errorf("HeightfieldSampled events = %d, expected 1", sampled)
	}
}

func TestServer_HealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, expected 200", resp.StatusCode)
	}

	// Served through httptest, so the listener check reports not started.
	resp, err = http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/ready status = %d, expected 503", resp.StatusCode)
	}
	var status struct {
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Checks["generator"].Status != "healthy" {
		t.Errorf("generator check = %q, expected healthy", status.Checks["generator"].Status)
	}
	if status.Checks["listener"].Status != "unhealthy" {
		t.Errorf("listener check = %q, expected unhealthy", status.Checks["listener"].Status)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s, err := New(testConfig(), WithLogger(logging.Nop()))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Shutdown(context.Background()); err != ErrNotStarted {
		t.Errorf("Shutdown() before Start error = %v, expected ErrNotStarted", err)
	}

	s, _ = New(testConfig(), WithLogger(logging.Nop()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("Addr() empty after Start")
	}

	resp, err := http.Get("http://" + addr + "/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/ready status = %d, expected 200", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	roundTrip(t, conn, GenerateRequest{GridSize: 1, DomainWidth: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if s.Addr() != "" {
		t.Error("Addr() should be empty after Shutdown")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.0.0.1:5555", "10.0.0.1"},
		{"[::1]:80", "::1"},
		{"pipe", "pipe"},
	}
	for _, tt := range tests {
		if got := clientKey(tt.in); got != tt.want {
			t.Errorf("clientKey(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestServer_SampleBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxInFlightSamples = 256
	_, ts := newTestServer(t, cfg)
	conn := dial(t, ts)

	resp := roundTrip(t, conn, GenerateRequest{GridSize: 4, DomainWidth: 32})
	if !strings.Contains(resp.Error, "sample budget") {
		t.Errorf("error = %q, expected sample budget rejection", resp.Error)
	}

	// 17 / 4 rounds down to a 16x16 domain, which fits exactly.
	resp = roundTrip(t, conn, GenerateRequest{GridSize: 4, DomainWidth: 17})
	if resp.Error != "" || resp.Rows != 16 {
		t.Errorf("unexpected response: error %q rows %d", resp.Error, resp.Rows)
	}
}
