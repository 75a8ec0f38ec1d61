package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestHealthServerEndpoints(t *testing.T) {
	h := &HealthServer{
		httpPort: 0, // nothing listens on port 0
		mcpPort:  0,
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		checkBody  func(t *testing.T, body map[string]any)
	}{
		{
			name:       "liveness always returns OK",
			path:       "/live",
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]any) {
				if alive, ok := body["alive"].(bool); !ok || !alive {
					t.Error("expected alive: true")
				}
			},
		},
		{
			name:       "readiness returns unhealthy when services down",
			path:       "/ready",
			wantStatus: http.StatusServiceUnavailable,
			checkBody: func(t *testing.T, body map[string]any) {
				if ready, ok := body["ready"].(bool); !ok || ready {
					t.Error("expected ready: false")
				}
			},
		},
		{
			name:       "health returns unhealthy when services down",
			path:       "/health",
			wantStatus: http.StatusServiceUnavailable,
			checkBody: func(t *testing.T, body map[string]any) {
				if status, ok := body["status"].(string); !ok || status != "unhealthy" {
					t.Errorf("expected status: unhealthy, got %v", status)
				}
				services, ok := body["services"].(map[string]any)
				if !ok {
					t.Fatal("expected services map")
				}
				if s, ok := services["http"].(string); !ok || s != "down" {
					t.Error("expected http: down")
				}
				if s, ok := services["mcp"].(string); !ok || s != "down" {
					t.Error("expected mcp: down")
				}
			},
		},
		{
			name:       "root path returns health",
			path:       "/",
			wantStatus: http.StatusServiceUnavailable,
			checkBody: func(t *testing.T, body map[string]any) {
				if _, ok := body["status"]; !ok {
					t.Error("expected status field")
				}
			},
		},
		{
			name:       "http health endpoint",
			path:       "/health/http",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "mcp health endpoint",
			path:       "/health/mcp",
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	handler := h.routes()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if tt.checkBody != nil {
				tt.checkBody(t, body)
			}
		})
	}
}

func listenAndAccept(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return listener.Addr().(*net.TCPAddr).Port
}

func TestHealthServerWithRealServices(t *testing.T) {
	h := &HealthServer{
		httpPort: listenAndAccept(t),
		mcpPort:  listenAndAccept(t),
	}

	rec := httptest.NewRecorder()
	h.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if status := body["status"]; status != "healthy" {
		t.Errorf("status = %v, want healthy", status)
	}
}

func TestHealthDisabledServiceCountsAsUp(t *testing.T) {
	h := &HealthServer{
		httpPort: listenAndAccept(t),
		mcpPort:  -1,
	}

	rec := httptest.NewRecorder()
	h.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestHealthServerStartStop(t *testing.T) {
	h := NewHealthServer(HealthConfig{HTTPPort: -1, MCPPort: -1})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	h.port = port

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/live")
	if err != nil {
		t.Fatalf("failed to connect to health server: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200, body: %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		t.Errorf("Stop error: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Start returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Start did not return after Stop")
	}
}
