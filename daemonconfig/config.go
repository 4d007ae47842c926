// Package daemonconfig loads the runtime settings for cmd/poold, the
// protocol-core daemon. Restructured from the teacher's
// services/lendingd/config package: that service wired a gRPC listener's
// TLS/auth surface, this daemon wires a pool's storage path and its external
// collaborator endpoints instead, but keeps the same Load/normalize/validate
// shape and YAML tagging.
package daemonconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the pool daemon.
type Config struct {
	StoragePath string        `yaml:"storage_path"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
	Oracle      EndpointConfig `yaml:"oracle"`
	Emitter     EndpointConfig `yaml:"emitter"`
	Backstop    BackstopConfig `yaml:"backstop"`
	Poll        PollConfig     `yaml:"poll"`
}

// EndpointConfig names an external collaborator the daemon dials out to.
type EndpointConfig struct {
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

// BackstopConfig names the shared backstop contract and its LP token.
type BackstopConfig struct {
	Address string `yaml:"address"`
	LPToken string `yaml:"lp_token"`
}

// PollConfig bounds how often the daemon drives the permissionless
// distribute/gulp_emissions entry points (spec.md §4.7), separate from the
// protocol-level cooldowns those calls enforce internally.
type PollConfig struct {
	DistributeInterval time.Duration `yaml:"distribute_interval"`
	GulpInterval       time.Duration `yaml:"gulp_interval"`
	RateLimitPerMin    int           `yaml:"rate_limit_per_min"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		StoragePath: "./data",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		Poll: PollConfig{
			DistributeInterval: 30 * time.Second,
			GulpInterval:       time.Hour,
			RateLimitPerMin:    60,
		},
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.StoragePath = strings.TrimSpace(cfg.StoragePath)
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./data"
	}
	cfg.MetricsAddr = strings.TrimSpace(cfg.MetricsAddr)
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.Oracle.Address = strings.TrimSpace(cfg.Oracle.Address)
	cfg.Emitter.Address = strings.TrimSpace(cfg.Emitter.Address)
	cfg.Backstop.Address = strings.TrimSpace(cfg.Backstop.Address)
	cfg.Backstop.LPToken = strings.TrimSpace(cfg.Backstop.LPToken)
	if cfg.Poll.DistributeInterval <= 0 {
		cfg.Poll.DistributeInterval = 30 * time.Second
	}
	if cfg.Poll.GulpInterval <= 0 {
		cfg.Poll.GulpInterval = time.Hour
	}
	if cfg.Poll.RateLimitPerMin <= 0 {
		cfg.Poll.RateLimitPerMin = 60
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Oracle.Address == "" {
		return fmt.Errorf("oracle: address is required")
	}
	if cfg.Backstop.Address == "" {
		return fmt.Errorf("backstop: address is required")
	}
	if cfg.Backstop.LPToken == "" {
		return fmt.Errorf("backstop: lp_token is required")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unrecognized level %q", cfg.LogLevel)
	}
	return nil
}
