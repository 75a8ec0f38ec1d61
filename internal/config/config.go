// Package config loads service configuration from a YAML file, environment
// variables and .env files, and serves system prompts from XML prompt files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORGE_"

// Config is the service configuration. Relative paths are resolved against
// ProjectDir by Resolve.
type Config struct {
	// ProjectDir is the root of the generated project.
	ProjectDir string `yaml:"project_dir"`

	// SandboxRoot bounds every materialized write.
	SandboxRoot string `yaml:"sandbox_root"`

	// HostPage is the long-lived page components are inlined into.
	HostPage string `yaml:"host_page"`

	// PromptDir holds code-prompt.xml and decision-prompt.xml.
	PromptDir string `yaml:"prompt_dir"`

	// DBPath is the apply ledger location. Empty disables the ledger.
	DBPath string `yaml:"db_path"`

	// Channel is the default preview channel name.
	Channel string `yaml:"channel"`

	// CacheSize bounds the rendered preview cache.
	CacheSize int `yaml:"cache_size"`

	// Watch enables host page and prompt file watching.
	Watch bool `yaml:"watch"`

	HTTPAddr   string `yaml:"http_addr"`
	MCPAddr    string `yaml:"mcp_addr"`
	HealthPort int    `yaml:"health_port"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ProjectDir:  ".",
		SandboxRoot: "app",
		HostPage:    "app/page.tsx",
		PromptDir:   "app/config",
		DBPath:      ".artifact-forge/ledger.lbug",
		Channel:     "ai-preview",
		CacheSize:   128,
		Watch:       true,
		HTTPAddr:    ":3001",
		MCPAddr:     ":8000",
		HealthPort:  8080,
		LogLevel:    "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from FORGE_* variables returned by lookup, usually
// os.LookupEnv.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("PROJECT_DIR", &cfg.ProjectDir)
	str("SANDBOX_ROOT", &cfg.SandboxRoot)
	str("HOST_PAGE", &cfg.HostPage)
	str("PROMPT_DIR", &cfg.PromptDir)
	str("DB_PATH", &cfg.DBPath)
	str("CHANNEL", &cfg.Channel)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("MCP_ADDR", &cfg.MCPAddr)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := lookup(EnvPrefix + "CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%sCACHE_SIZE: %w", EnvPrefix, err)
		}
		cfg.CacheSize = n
	}
	if v, ok := lookup(EnvPrefix + "HEALTH_PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%sHEALTH_PORT: %w", EnvPrefix, err)
		}
		cfg.HealthPort = n
	}
	if v, ok := lookup(EnvPrefix + "WATCH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%sWATCH: %w", EnvPrefix, err)
		}
		cfg.Watch = b
	}
	return cfg, nil
}

// Resolve makes ProjectDir absolute and resolves the other paths against it.
func (c Config) Resolve() (Config, error) {
	projectDir, err := filepath.Abs(c.ProjectDir)
	if err != nil {
		return c, fmt.Errorf("resolve project dir: %w", err)
	}
	c.ProjectDir = projectDir

	under := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(projectDir, filepath.FromSlash(p))
	}
	c.SandboxRoot = under(c.SandboxRoot)
	c.HostPage = under(c.HostPage)
	c.PromptDir = under(c.PromptDir)
	c.DBPath = under(c.DBPath)
	return c, nil
}

// Validate reports configuration that cannot be served.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ProjectDir) == "" {
		errs = append(errs, errors.New("project_dir is required"))
	}
	if strings.TrimSpace(c.SandboxRoot) == "" {
		errs = append(errs, errors.New("sandbox_root is required"))
	}
	if strings.TrimSpace(c.HostPage) == "" {
		errs = append(errs, errors.New("host_page is required"))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}
	if c.HTTPAddr == "" && c.MCPAddr == "" {
		errs = append(errs, errors.New("at least one of http_addr and mcp_addr must be set"))
	}
	return errors.Join(errs...)
}
