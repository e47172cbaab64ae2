package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the swarmkb node configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxBodyMB       int `yaml:"max_body_mb"`
}

// DatabaseConfig holds log store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// MirrorConfig holds relational mirror settings. An empty DSN disables the mirror.
type MirrorConfig struct {
	DSN          string `yaml:"dsn"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PeerConfig identifies one cluster peer.
type PeerConfig struct {
	ID     string `yaml:"id"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// ClusterConfig holds node identity and the static peer list.
type ClusterConfig struct {
	NodeID        string       `yaml:"node_id"`
	Context       string       `yaml:"context"`
	Peers         []PeerConfig `yaml:"peers"`
	TimeBudgetMS  int          `yaml:"time_budget_ms"`
	QuorumN       int          `yaml:"quorum_n"`
	PeerTimeoutMS int          `yaml:"peer_timeout_ms"`
}

// LLMConfig enables the OpenAI-compatible extractor when APIKey is set.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// Token budget; zero limits are unlimited. StoreDailyTokenLimit caps each
	// source store separately. BudgetAction is "warn" or "reject".
	DailyTokenLimit      int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit    int64  `yaml:"monthly_token_limit"`
	StoreDailyTokenLimit int64  `yaml:"store_daily_token_limit"`
	BudgetAction         string `yaml:"budget_action"`
}

// EnrichmentConfig holds metadata pipeline settings.
type EnrichmentConfig struct {
	Workers              int       `yaml:"workers"`
	MaxAttempts          int       `yaml:"max_attempts"`
	InitialBackoffMS     int       `yaml:"initial_backoff_ms"`
	MaxBackoffMS         int       `yaml:"max_backoff_ms"`
	WriteTimeoutMS       int       `yaml:"write_timeout_ms"`
	ReconcileIntervalSec int       `yaml:"reconcile_interval_sec"`
	LLM                  LLMConfig `yaml:"llm"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyMB <= 0 {
		c.HTTP.MaxBodyMB = 16
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Mirror.MaxOpenConns <= 0 {
		c.Mirror.MaxOpenConns = 10
	}
	if c.Cluster.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Cluster.NodeID = host
		}
	}
	if c.Cluster.Context == "" {
		c.Cluster.Context = "swarmkb"
	}
	if c.Cluster.TimeBudgetMS <= 0 {
		c.Cluster.TimeBudgetMS = 1500
	}
	if c.Cluster.PeerTimeoutMS <= 0 {
		c.Cluster.PeerTimeoutMS = 2000
	}
	if c.Enrichment.Workers <= 0 {
		c.Enrichment.Workers = 8
	}
	if c.Enrichment.MaxAttempts <= 0 {
		c.Enrichment.MaxAttempts = 5
	}
	if c.Enrichment.InitialBackoffMS <= 0 {
		c.Enrichment.InitialBackoffMS = 50
	}
	if c.Enrichment.MaxBackoffMS <= 0 {
		c.Enrichment.MaxBackoffMS = 2000
	}
	if c.Enrichment.WriteTimeoutMS <= 0 {
		c.Enrichment.WriteTimeoutMS = 3000
	}
	if c.Enrichment.ReconcileIntervalSec <= 0 {
		c.Enrichment.ReconcileIntervalSec = 60
	}
	if c.Enrichment.LLM.Model == "" {
		c.Enrichment.LLM.Model = "gpt-4o-mini"
	}
	if c.Enrichment.LLM.BudgetAction == "" {
		c.Enrichment.LLM.BudgetAction = "warn"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Cluster.NodeID == "" {
		return fmt.Errorf("cluster.node_id is required")
	}
	if strings.ContainsAny(c.Cluster.Context, "/ ") {
		return fmt.Errorf("cluster.context must be a single path segment, got %q", c.Cluster.Context)
	}
	seen := make(map[string]bool, len(c.Cluster.Peers))
	for i, p := range c.Cluster.Peers {
		if p.ID == "" || p.URL == "" {
			return fmt.Errorf("cluster.peers[%d]: id and url are required", i)
		}
		if p.ID == c.Cluster.NodeID {
			return fmt.Errorf("cluster.peers[%d]: peer id %q equals node_id", i, p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("cluster.peers[%d]: duplicate peer id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	if c.Cluster.QuorumN < 0 || c.Cluster.QuorumN > len(c.Cluster.Peers) {
		return fmt.Errorf("cluster.quorum_n must be between 0 and the number of peers (%d), got %d",
			len(c.Cluster.Peers), c.Cluster.QuorumN)
	}
	if c.Enrichment.InitialBackoffMS > c.Enrichment.MaxBackoffMS {
		return fmt.Errorf("enrichment.initial_backoff_ms (%d) exceeds max_backoff_ms (%d)",
			c.Enrichment.InitialBackoffMS, c.Enrichment.MaxBackoffMS)
	}
	if a := c.Enrichment.LLM.BudgetAction; a != "" && a != "warn" && a != "reject" {
		return fmt.Errorf("enrichment.llm.budget_action must be warn or reject, got %q", a)
	}
	if llm := c.Enrichment.LLM; llm.DailyTokenLimit < 0 || llm.MonthlyTokenLimit < 0 || llm.StoreDailyTokenLimit < 0 {
		return fmt.Errorf("enrichment.llm token limits must not be negative")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
