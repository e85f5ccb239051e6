package config

import (
	"sort"
	"strings"

	logx "viewtrack/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (api token, DSN) are reported as
// set/unset only.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled))
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""))
	}

	if oldCfg.Provider != newCfg.Provider {
		changed = append(changed, "provider")
		attrs = append(attrs,
			logx.String("provider.base_url", strings.TrimSpace(newCfg.Provider.BaseURL)),
			logx.Float64("provider.requests_per_sec", newCfg.Provider.RequestsPerSec))
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.scan_interval", strings.TrimSpace(newCfg.Scheduler.ScanInterval)))
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.Int("poll.retry_max", newCfg.Poll.RetryMax),
			logx.String("poll.retry_base", strings.TrimSpace(newCfg.Poll.RetryBase)),
			logx.String("poll.retry_max_delay", strings.TrimSpace(newCfg.Poll.RetryMaxDelay)))
	}

	// Server: never log the token itself.
	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.token_set", strings.TrimSpace(newCfg.Server.Token) != ""))
	}

	if oldCfg.Janitor != newCfg.Janitor {
		changed = append(changed, "janitor")
		attrs = append(attrs,
			logx.String("janitor.checkpoint_every", strings.TrimSpace(newCfg.Janitor.CheckpointEvery)),
			logx.String("janitor.event_retention", strings.TrimSpace(newCfg.Janitor.EventRetention)))
	}

	sort.Strings(changed)
	return changed, attrs
}
