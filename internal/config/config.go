package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the main configuration structure. It is built once at
// startup and passed explicitly to every component.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
}

// PathsConfig locates every file the two stages read or write.
// Empty file paths are derived from VPNDir.
type PathsConfig struct {
	VPNDir      string `yaml:"vpn_dir" mapstructure:"vpn_dir"`
	DBPath      string `yaml:"db_path" mapstructure:"db_path"`
	HAProxyCfg  string `yaml:"haproxy_cfg" mapstructure:"haproxy_cfg"`
	DomainList  string `yaml:"domain_list" mapstructure:"domain_list"`
	OwnDomain   string `yaml:"own_domain" mapstructure:"own_domain"`
	ServerJSON  string `yaml:"server_json" mapstructure:"server_json"`
	ChangeSet   string `yaml:"change_set" mapstructure:"change_set"`
	PatchOutput string `yaml:"patch_output" mapstructure:"patch_output"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
	File   string `yaml:"file" mapstructure:"file"`
}

// APIConfig contains the read-only distribution API configuration
type APIConfig struct {
	Listen          string           `yaml:"listen" mapstructure:"listen"`
	JWTSecret       string           `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTClockSkew    time.Duration    `yaml:"jwt_clock_skew" mapstructure:"jwt_clock_skew"`
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	TLS             TLSConfig        `yaml:"tls" mapstructure:"tls"`
	GRPCHealth      GRPCHealthConfig `yaml:"grpc_health" mapstructure:"grpc_health"`
}

// RateLimitConfig defines per-client rate limiting for the API
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec  float64       `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	BurstSize       int           `yaml:"burst_size" mapstructure:"burst_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// TLSConfig enables HTTPS for the API when both files are set
type TLSConfig struct {
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`
	// HTTP2 tunes the HTTP/2 server; only meaningful with TLS
	HTTP2 bool `yaml:"http2" mapstructure:"http2"`
}

// Enabled reports whether TLS is configured
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// GRPCHealthConfig exposes the standard gRPC health service. An empty Listen
// disables it.
type GRPCHealthConfig struct {
	Listen   string        `yaml:"listen" mapstructure:"listen"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

const (
	DomainListFile = "masq_domain_list.json"
	OwnDomainFile  = "domain.txt"
	ServerJSONFile = "server.json"
	ChangeSetFile  = "changes_dict.json"
)

// DefaultConfig returns a configuration with the container layout defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			VPNDir:     "/vpn",
			DBPath:     "/var/lib/bd/bd.db",
			HAProxyCfg: "/etc/haproxy/haproxy.cfg",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		API: APIConfig{
			Listen:          "127.0.0.1:8088",
			JWTClockSkew:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:         true,
				RequestsPerSec:  5,
				BurstSize:       10,
				CleanupInterval: 5 * time.Minute,
			},
			TLS: TLSConfig{HTTP2: true},
			GRPCHealth: GRPCHealthConfig{
				Interval: 10 * time.Second,
			},
		},
	}
}

// ResolvePaths fills every empty file path from VPNDir
func (c *Config) ResolvePaths() {
	p := &c.Paths
	if p.DomainList == "" {
		p.DomainList = filepath.Join(p.VPNDir, DomainListFile)
	}
	if p.OwnDomain == "" {
		p.OwnDomain = filepath.Join(p.VPNDir, OwnDomainFile)
	}
	if p.ServerJSON == "" {
		p.ServerJSON = filepath.Join(p.VPNDir, ServerJSONFile)
	}
	if p.ChangeSet == "" {
		p.ChangeSet = filepath.Join(p.VPNDir, ChangeSetFile)
	}
	if p.PatchOutput == "" {
		p.PatchOutput = p.HAProxyCfg
	}
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Paths.VPNDir == "" {
		return fmt.Errorf("paths.vpn_dir cannot be empty")
	}
	if c.Paths.DBPath == "" {
		return fmt.Errorf("paths.db_path cannot be empty")
	}
	if c.Paths.HAProxyCfg == "" {
		return fmt.Errorf("paths.haproxy_cfg cannot be empty")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.API.RateLimit.Enabled {
		if c.API.RateLimit.RequestsPerSec <= 0 {
			return fmt.Errorf("api.rate_limit.requests_per_sec must be positive")
		}
		if c.API.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("api.rate_limit.burst_size must be positive")
		}
	}

	if (c.API.TLS.CertFile == "") != (c.API.TLS.KeyFile == "") {
		return fmt.Errorf("api.tls.cert_file and api.tls.key_file must be set together")
	}
	if c.API.GRPCHealth.Listen != "" && c.API.GRPCHealth.Interval <= 0 {
		return fmt.Errorf("api.grpc_health.interval must be positive")
	}
	if c.API.JWTClockSkew < 0 {
		return fmt.Errorf("api.jwt_clock_skew cannot be negative")
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
