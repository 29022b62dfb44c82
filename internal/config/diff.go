package config

import (
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// Sections whose changes only take effect after a restart.
var restartSections = map[string]bool{
	"http":     true,
	"storage":  true,
	"whatsapp": true,
	"telegram": true,
}

// Change summarizes a config reload.
type Change struct {
	Sections []string
	// Attrs are safe for logging (never include secrets).
	Attrs []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// NeedsRestart lists changed sections that are not applied live.
func (c Change) NeedsRestart() []string {
	var out []string
	for _, s := range c.Sections {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.HTTP != newCfg.HTTP {
		ch.Sections = append(ch.Sections, "http")
		ch.Attrs = append(ch.Attrs, logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)))
	}
	if oldCfg.Storage != newCfg.Storage {
		ch.Sections = append(ch.Sections, "storage")
		ch.Attrs = append(ch.Attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.dashboard_enabled", newCfg.Logging.Dashboard.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.WhatsApp != newCfg.WhatsApp {
		ch.Sections = append(ch.Sections, "whatsapp")
		ch.Attrs = append(ch.Attrs, logx.String("whatsapp.store_path", newCfg.WhatsApp.StorePath))
	}
	// Never log the api key, only whether it is set.
	if oldCfg.Generator != newCfg.Generator {
		ch.Sections = append(ch.Sections, "generator")
		ch.Attrs = append(ch.Attrs,
			logx.String("generator.api_base", newCfg.Generator.APIBase),
			logx.String("generator.model", newCfg.Generator.Model),
			logx.Int("generator.max_tokens", newCfg.Generator.MaxTokens),
			logx.Bool("generator.api_key_set", strings.TrimSpace(newCfg.Generator.APIKey) != ""),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		ch.Sections = append(ch.Sections, "scheduler")
		ch.Attrs = append(ch.Attrs, logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)))
	}
	if oldCfg.Telegram != newCfg.Telegram {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
		)
	}

	sort.Strings(ch.Sections)
	return ch
}
