package config

import (
	"os"
	"strings"
)

// Environment overrides, applied after file parse. Secrets belong here
// rather than in the config file.
const (
	EnvAPIToken    = "VIEWTRACK_API_TOKEN"
	EnvDBDriver    = "VIEWTRACK_DB_DRIVER"
	EnvDBPath      = "VIEWTRACK_DB_PATH"
	EnvDBDSN       = "VIEWTRACK_DB_DSN"
	EnvProviderURL = "VIEWTRACK_PROVIDER_URL"
	EnvListenAddr  = "VIEWTRACK_LISTEN_ADDR"
	EnvLogLevel    = "VIEWTRACK_LOG_LEVEL"
)

func applyEnv(cfg *Config) {
	if v := envValue(EnvAPIToken); v != "" {
		cfg.Server.Token = v
	}
	if v := envValue(EnvDBDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := envValue(EnvDBPath); v != "" {
		cfg.Storage.Path = v
	}
	if v := envValue(EnvDBDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := envValue(EnvProviderURL); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := envValue(EnvListenAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := envValue(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
