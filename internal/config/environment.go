package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every rotator environment variable
const EnvPrefix = "ROTATOR"

// legacyEnv maps config keys to the bare environment variables the container
// scripts already export. They are consulted after the prefixed form.
var legacyEnv = map[string]string{
	"paths.vpn_dir":     "VPN_DIR",
	"paths.db_path":     "DB_PATH",
	"paths.haproxy_cfg": "HAPROXY_CFG",
}

// Load loads configuration with priority: env vars > config file > defaults.
// An empty configFile skips the file layer.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.ResolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("paths.vpn_dir", d.Paths.VPNDir)
	v.SetDefault("paths.db_path", d.Paths.DBPath)
	v.SetDefault("paths.haproxy_cfg", d.Paths.HAProxyCfg)
	v.SetDefault("paths.domain_list", d.Paths.DomainList)
	v.SetDefault("paths.own_domain", d.Paths.OwnDomain)
	v.SetDefault("paths.server_json", d.Paths.ServerJSON)
	v.SetDefault("paths.change_set", d.Paths.ChangeSet)
	v.SetDefault("paths.patch_output", d.Paths.PatchOutput)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.jwt_secret", d.API.JWTSecret)
	v.SetDefault("api.shutdown_timeout", d.API.ShutdownTimeout)
	v.SetDefault("api.rate_limit.enabled", d.API.RateLimit.Enabled)
	v.SetDefault("api.rate_limit.requests_per_sec", d.API.RateLimit.RequestsPerSec)
	v.SetDefault("api.rate_limit.burst_size", d.API.RateLimit.BurstSize)
	v.SetDefault("api.rate_limit.cleanup_interval", d.API.RateLimit.CleanupInterval)
	v.SetDefault("api.jwt_clock_skew", d.API.JWTClockSkew)
	v.SetDefault("api.tls.cert_file", d.API.TLS.CertFile)
	v.SetDefault("api.tls.key_file", d.API.TLS.KeyFile)
	v.SetDefault("api.tls.http2", d.API.TLS.HTTP2)
	v.SetDefault("api.grpc_health.listen", d.API.GRPCHealth.Listen)
	v.SetDefault("api.grpc_health.interval", d.API.GRPCHealth.Interval)
}
