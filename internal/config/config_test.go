package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the legacy variables so the host environment does not leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range legacyEnv {
		t.Setenv(env, "")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/vpn", cfg.Paths.VPNDir)
	assert.Equal(t, "/var/lib/bd/bd.db", cfg.Paths.DBPath)
	assert.Equal(t, "/etc/haproxy/haproxy.cfg", cfg.Paths.HAProxyCfg)
}

func TestResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.VPNDir = "/srv/vpn"
	cfg.Paths.ServerJSON = "/custom/server.json"
	cfg.ResolvePaths()

	assert.Equal(t, "/srv/vpn/masq_domain_list.json", cfg.Paths.DomainList)
	assert.Equal(t, "/srv/vpn/domain.txt", cfg.Paths.OwnDomain)
	assert.Equal(t, "/custom/server.json", cfg.Paths.ServerJSON)
	assert.Equal(t, "/srv/vpn/changes_dict.json", cfg.Paths.ChangeSet)
	assert.Equal(t, cfg.Paths.HAProxyCfg, cfg.Paths.PatchOutput)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty vpn dir", func(c *Config) { c.Paths.VPNDir = "" }},
		{"empty db path", func(c *Config) { c.Paths.DBPath = "" }},
		{"empty haproxy cfg", func(c *Config) { c.Paths.HAProxyCfg = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad output", func(c *Config) { c.Logging.Output = "syslog" }},
		{"zero rate", func(c *Config) { c.API.RateLimit.RequestsPerSec = 0 }},
		{"zero burst", func(c *Config) { c.API.RateLimit.BurstSize = 0 }},
		{"cert without key", func(c *Config) { c.API.TLS.CertFile = "cert.pem" }},
		{"grpc without interval", func(c *Config) {
			c.API.GRPCHealth.Listen = ":9090"
			c.API.GRPCHealth.Interval = 0
		}},
		{"negative skew", func(c *Config) { c.API.JWTClockSkew = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.API.RateLimit = RateLimitConfig{Enabled: false}
	assert.NoError(t, cfg.Validate(), "rate limit values are ignored when disabled")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/vpn/server.json", cfg.Paths.ServerJSON)
	assert.Equal(t, 30*time.Second, cfg.API.JWTClockSkew)
	assert.True(t, cfg.API.TLS.HTTP2)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "rotator.yaml")
	content := `paths:
  vpn_dir: /data/vpn
  patch_output: /tmp/haproxy.out
logging:
  level: debug
  format: json
api:
  listen: 0.0.0.0:9000
  shutdown_timeout: 3s
  rate_limit:
    enabled: true
    requests_per_sec: 2
    burst_size: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/vpn/domain.txt", cfg.Paths.OwnDomain)
	assert.Equal(t, "/tmp/haproxy.out", cfg.Paths.PatchOutput)
	assert.Equal(t, "/var/lib/bd/bd.db", cfg.Paths.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Listen)
	assert.Equal(t, 3*time.Second, cfg.API.ShutdownTimeout)
	assert.Equal(t, 4, cfg.API.RateLimit.BurstSize)
}

func TestLoadSavedConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "rotator.yaml")

	saved := DefaultConfig()
	saved.Paths.VPNDir = "/opt/vpn"
	saved.API.ShutdownTimeout = 7 * time.Second
	require.NoError(t, saved.SaveToFile(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/vpn", cfg.Paths.VPNDir)
	assert.Equal(t, 7*time.Second, cfg.API.ShutdownTimeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VPN_DIR", "/legacy/vpn")
	t.Setenv("DB_PATH", "/legacy/bd.db")
	t.Setenv("ROTATOR_PATHS_DB_PATH", "/prefixed/bd.db")
	t.Setenv("ROTATOR_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/legacy/vpn", cfg.Paths.VPNDir)
	assert.Equal(t, "/legacy/vpn/changes_dict.json", cfg.Paths.ChangeSet)
	assert.Equal(t, "/prefixed/bd.db", cfg.Paths.DBPath, "prefixed form wins")
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	t.Setenv("ROTATOR_LOGGING_FORMAT", "xml")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid log format")
}
