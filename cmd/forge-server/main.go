// Package main provides the entry point for the artifact-forge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/boblangley/artifact-forge/internal/applier"
	"github.com/boblangley/artifact-forge/internal/config"
	"github.com/boblangley/artifact-forge/internal/db"
	"github.com/boblangley/artifact-forge/internal/materialize"
	"github.com/boblangley/artifact-forge/internal/parser"
	"github.com/boblangley/artifact-forge/internal/patcher"
	"github.com/boblangley/artifact-forge/internal/preview"
	"github.com/boblangley/artifact-forge/internal/sandbox"
	"github.com/boblangley/artifact-forge/internal/server"
	"github.com/boblangley/artifact-forge/internal/version"
	"github.com/boblangley/artifact-forge/internal/watcher"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to a YAML config file")
	envFile := flag.String("env-file", ".env", "Path to a .env file (skipped when missing)")
	projectDir := flag.String("project", "", "Project directory containing app/")
	dbPath := flag.String("db", "", "Path to the apply ledger database (\"none\" to disable)")
	httpAddr := flag.String("http", "", "HTTP API address (host:port)")
	mcpAddr := flag.String("mcp", "", "MCP HTTP server address (host:port)")
	healthPort := flag.Int("health-port", -1, "Health check HTTP server port (0 to disable)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	resetLedger := flag.Bool("reset-ledger", false, "Clear the apply ledger on startup")
	noWatch := flag.Bool("no-watch", false, "Disable host page and prompt watching")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Name, version.Version)
		return
	}

	// Load configuration: defaults, file, .env, FORGE_* env, then flags
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	cfg, err = config.ApplyEnv(cfg, os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *projectDir != "" {
		cfg.ProjectDir = *projectDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
		if *dbPath == "none" {
			cfg.DBPath = ""
		}
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *mcpAddr != "" {
		cfg.MCPAddr = *mcpAddr
	}
	if *healthPort >= 0 {
		cfg.HealthPort = *healthPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *noWatch {
		cfg.Watch = false
	}

	cfg, err = cfg.Resolve()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		flag.Usage()
		os.Exit(1)
	}

	// Configure logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting artifact-forge server",
		"version", version.Version,
		"project", cfg.ProjectDir,
		"host_page", cfg.HostPage,
		"db", cfg.DBPath,
		"http", cfg.HTTPAddr,
		"mcp", cfg.MCPAddr,
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open the apply ledger
	var ledger *db.GraphDB
	if cfg.DBPath != "" {
		ledger, err = db.Open(db.Config{
			Path:        cfg.DBPath,
			AutoRecover: true,
			Logger:      logger,
		})
		if err != nil {
			slog.Error("failed to open ledger", "error", err)
			os.Exit(1)
		}
		defer ledger.Close()

		if *resetLedger {
			if err := ledger.ClearDatabase(ctx); err != nil {
				slog.Error("failed to reset ledger", "error", err)
				os.Exit(1)
			}
			slog.Info("ledger cleared")
		}
	}

	// Build the pipeline
	fileSandbox, err := materialize.New(materialize.Config{
		ProjectDir: cfg.ProjectDir,
		Root:       cfg.SandboxRoot,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("failed to create sandbox", "error", err)
		os.Exit(1)
	}

	renderer, err := sandbox.New(sandbox.Config{CacheSize: cfg.CacheSize, Logger: logger})
	if err != nil {
		slog.Error("failed to create preview renderer", "error", err)
		os.Exit(1)
	}

	hostPatcher := patcher.New(patcher.Config{
		HostPath:   cfg.HostPage,
		ProjectDir: cfg.ProjectDir,
		Logger:     logger,
	})
	prompts := config.NewPrompts(cfg.PromptDir, logger)

	applierCfg := applier.Config{
		Sandbox:  fileSandbox,
		Embedder: hostPatcher,
		Logger:   logger,
	}
	pipeline := &server.Pipeline{
		Snippets: parser.NewSnippetExtractor(),
		Renderer: renderer,
		Hub:      preview.NewHub(preview.Config{Logger: logger}),
		Prompts:  prompts,
		HostPage: cfg.HostPage,
		Channel:  cfg.Channel,
		Logger:   logger,
	}
	// assigned only when open so a nil *GraphDB never hides in an interface
	if ledger != nil {
		applierCfg.Ledger = ledger
		pipeline.Ledger = ledger
	}
	pipeline.Applier = applier.New(applierCfg)

	// Start file watcher
	if cfg.Watch {
		w, err := watcher.New(watcher.Config{
			HostPage: cfg.HostPage,
			Prompts:  prompts,
			OnHostChange: func(_ context.Context, ev watcher.HostEvent) {
				names := make([]string, 0, len(ev.Blocks))
				for _, b := range ev.Blocks {
					names = append(names, b.Name)
				}
				slog.Info("host page changed", "path", ev.Path, "exists", ev.Exists, "blocks", names)
			},
			Logger: logger,
		})
		if err != nil {
			slog.Error("failed to create watcher", "error", err)
			os.Exit(1)
		}
		if err := w.Start(ctx); err != nil {
			slog.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
		defer func() { _ = w.Stop() }()
	}

	// Start HTTP API server
	var apiServer *http.Server
	if cfg.HTTPAddr != "" {
		apiServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.NewHTTPServer(pipeline).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			slog.Info("starting HTTP API server", "addr", cfg.HTTPAddr)
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP API server error", "error", err)
			}
		}()
	}

	// Start MCP HTTP server
	var mcpHTTPServer *http.Server
	if cfg.MCPAddr != "" {
		mcpServer := server.NewMCPServer(pipeline)

		mcpHTTPServer = &http.Server{
			Addr:    cfg.MCPAddr,
			Handler: mcpServer.HTTPHandler(),
		}

		go func() {
			slog.Info("starting MCP HTTP server", "addr", cfg.MCPAddr)
			if err := mcpHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("MCP HTTP server error", "error", err)
			}
		}()
	}

	// Start health check server
	var healthServer *server.HealthServer
	if cfg.HealthPort > 0 {
		healthServer = server.NewHealthServer(server.HealthConfig{
			Port:     cfg.HealthPort,
			HTTPPort: servicePort(cfg.HTTPAddr, 3001),
			MCPPort:  servicePort(cfg.MCPAddr, 8000),
			Logger:   logger,
		})

		go func() {
			if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	slog.Info("server ready",
		"http", cfg.HTTPAddr,
		"mcp", cfg.MCPAddr,
		"health", cfg.HealthPort,
	)

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP API server shutdown error", "error", err)
		}
	}
	if mcpHTTPServer != nil {
		if err := mcpHTTPServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("MCP HTTP server shutdown error", "error", err)
		}
	}
	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			slog.Error("health server shutdown error", "error", err)
		}
	}
	slog.Info("server shutdown complete")
}

// servicePort is the port health checks probe for addr; -1 when the service
// is not run.
func servicePort(addr string, defaultPort int) int {
	if addr == "" {
		return -1
	}
	if _, p, err := parseHostPort(addr, defaultPort); err == nil {
		return p
	}
	return defaultPort
}

// parseHostPort extracts host and port from an address string.
func parseHostPort(addr string, defaultPort int) (string, int, error) {
	if addr == "" {
		return "", defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// Maybe it's just a port like ":8000"
		if addr[0] == ':' {
			portStr = addr[1:]
			host = ""
		} else {
			return "", 0, err
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort, nil
	}
	return host, port, nil
}
