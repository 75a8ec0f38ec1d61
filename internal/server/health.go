package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// HealthServer provides HTTP health check endpoints for container probes.
type HealthServer struct {
	port     int
	httpPort int
	mcpPort  int
	server   *http.Server
	logger   *slog.Logger
}

// HealthConfig holds configuration for the health check server. A negative
// service port marks a service that is not run; it always reports up.
type HealthConfig struct {
	Port     int
	HTTPPort int
	MCPPort  int
	Logger   *slog.Logger
}

// NewHealthServer creates a new health check server.
func NewHealthServer(cfg HealthConfig) *HealthServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthServer{
		port:     cfg.Port,
		httpPort: cfg.HTTPPort,
		mcpPort:  cfg.MCPPort,
		logger:   logger,
	}
}

func (h *HealthServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/http", h.handleHTTPHealth)
	mux.HandleFunc("/health/mcp", h.handleMCPHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	return mux
}

// Start begins serving health check requests.
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         net.JoinHostPort("0.0.0.0", strconv.Itoa(h.port)),
		Handler:      h.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	h.logger.Info("health check server starting", "port", h.port)
	return h.server.ListenAndServe()
}

// Stop gracefully shuts down the health check server.
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpOK := checkPort(h.httpPort)
	mcpOK := checkPort(h.mcpPort)
	allOK := httpOK && mcpOK

	status := map[string]any{
		"status": statusString(allOK),
		"services": map[string]string{
			"http": upDownString(httpOK),
			"mcp":  upDownString(mcpOK),
		},
	}
	h.sendJSON(w, status, statusCode(allOK))
}

func (h *HealthServer) handleHTTPHealth(w http.ResponseWriter, r *http.Request) {
	ok := checkPort(h.httpPort)
	h.sendJSON(w, map[string]string{"status": upDownString(ok)}, statusCode(ok))
}

func (h *HealthServer) handleMCPHealth(w http.ResponseWriter, r *http.Request) {
	ok := checkPort(h.mcpPort)
	h.sendJSON(w, map[string]string{"status": upDownString(ok)}, statusCode(ok))
}

// handleReady implements Kubernetes-style readiness probe.
func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	allOK := checkPort(h.httpPort) && checkPort(h.mcpPort)
	h.sendJSON(w, map[string]bool{"ready": allOK}, statusCode(allOK))
}

// handleLive implements Kubernetes-style liveness probe.
func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]bool{"alive": true}, http.StatusOK)
}

// checkPort reports whether something accepts TCP connections on port.
// Negative ports are disabled services and count as healthy.
func checkPort(port int) bool {
	if port < 0 {
		return true
	}
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (h *HealthServer) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode health response", "error", err)
	}
}

func statusString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func upDownString(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
