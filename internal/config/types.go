package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Config is the process configuration (remindbot.json / remindbot.yaml).
//
// Operational parameters the operator edits from the dashboard (interval,
// enabled flag, send delay, prompts) are NOT here; they live in the settings
// document managed by internal/settings.
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Generator GeneratorConfig `json:"generator"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
}

// HTTPConfig controls the dashboard server.
//
// Prefer binding to localhost; the control API has no authentication.
type HTTPConfig struct {
	Addr string `json:"addr"` // default: "127.0.0.1:3000"

	// Go duration strings. WriteTimeout defaults to 0 so the SSE stream stays open.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`

	// MaxUploadMB caps reference document uploads. Default 20.
	MaxUploadMB int `json:"max_upload_mb,omitempty"`

	// Pprof exposes /debug/pprof/ on the dashboard listener.
	Pprof bool `json:"pprof,omitempty"`
}

// StorageConfig selects the document store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "file" (default) or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level     string           `json:"level"`
	Console   bool             `json:"console"`
	File      LoggingFile      `json:"file"`
	Dashboard LoggingDashboard `json:"dashboard"`
	Telegram  LoggingTelegram  `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDashboard struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// WhatsAppConfig controls the whatsmeow session.
type WhatsAppConfig struct {
	// StorePath is the sqlite file holding the paired device keys.
	StorePath string `json:"store_path"`
	// LogLevel for whatsmeow's own logger (DEBUG/INFO/WARN/ERROR).
	LogLevel string `json:"log_level,omitempty"`
	// QRFile optionally mirrors the pairing QR to a PNG on disk.
	QRFile string `json:"qr_file,omitempty"`
	// SendTimeout is a Go duration string. Default 30s.
	SendTimeout string `json:"send_timeout,omitempty"`
}

// GeneratorConfig controls the OpenAI-compatible text generator.
// The OPENAI_* environment variables override it (see env.go).
type GeneratorConfig struct {
	APIBase     string  `json:"api_base"`
	APIKey      string  `json:"api_key,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	// Timeout is a Go duration string. Default 60s.
	Timeout string `json:"timeout,omitempty"`
	// Retries of a single completion request on transient errors. Default 2.
	Retries int `json:"retries,omitempty"`
	// DocumentsDir holds per-destination reference PDFs (<id>.pdf).
	DocumentsDir string `json:"documents_dir,omitempty"`
	// DocumentChars caps extracted document text fed to the prompt. Default 10000.
	DocumentChars int `json:"document_chars,omitempty"`
}

type SchedulerConfig struct {
	// Trigger timezone (IANA name). Default: local.
	Timezone string `json:"timezone,omitempty"`
}

// TelegramConfig enables the optional log alert sink.
type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

const (
	DefaultHTTPAddr      = "127.0.0.1:3000"
	DefaultStoragePath   = "./data"
	DefaultAPIBase       = "https://api.groq.com/openai/v1"
	DefaultModel         = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultMaxTokens     = 3900
	DefaultTemperature   = 0.7
	DefaultDocumentChars = 10000
)

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values. It never overrides explicit settings.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 20
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.WhatsApp.StorePath) == "" {
		c.WhatsApp.StorePath = "./data/whatsapp.db"
	}
	g := &c.Generator
	if strings.TrimSpace(g.APIBase) == "" {
		g.APIBase = DefaultAPIBase
	}
	if strings.TrimSpace(g.Model) == "" {
		g.Model = DefaultModel
	}
	if g.MaxTokens <= 0 {
		g.MaxTokens = DefaultMaxTokens
	}
	if g.Temperature == 0 {
		g.Temperature = DefaultTemperature
	}
	if g.Retries <= 0 {
		g.Retries = 2
	}
	if strings.TrimSpace(g.DocumentsDir) == "" {
		g.DocumentsDir = "./PDFs"
	}
	if g.DocumentChars <= 0 {
		g.DocumentChars = DefaultDocumentChars
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("http.read_timeout", c.HTTP.ReadTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("http.write_timeout", c.HTTP.WriteTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("whatsapp.send_timeout", c.WhatsApp.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("generator.timeout", c.Generator.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generator.temperature: must be within [0,2]"))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if c.Logging.Telegram.Enabled && (strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("logging.telegram: requires telegram.token and telegram.chat_id"))
	}
	return errors.Join(errs...)
}

// Location resolves the scheduler timezone, falling back to time.Local.
func (s SchedulerConfig) Location() *time.Location {
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}

// LogxConfig maps the logging section onto the logx service config.
func (l LoggingConfig) LogxConfig() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Dashboard: logx.DashboardConfig{
			Enabled:    l.Dashboard.Enabled,
			MinLevel:   l.Dashboard.MinLevel,
			RatePerSec: l.Dashboard.RatePerSec,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr parses raw and returns def when raw is empty, zero or invalid.
// Validate reports invalid values; callers here only need a usable value.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
