package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/dashboard"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/textgen"
	"remindbot/internal/transport/telegram/alert"
	"remindbot/internal/transport/whatsapp"
)

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

func mapGeneratorConfig(cfg *config.Config) textgen.Config {
	g := cfg.Generator
	return textgen.Config{
		APIBase:     g.APIBase,
		APIKey:      g.APIKey,
		Model:       g.Model,
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
		Timeout:     config.DurationOr(g.Timeout, 60*time.Second),
		Retries:     g.Retries,
	}
}

func mapDashboardConfig(cfg *config.Config) dashboard.Config {
	h := cfg.HTTP
	return dashboard.Config{
		Addr:           h.Addr,
		ReadTimeout:    config.DurationOr(h.ReadTimeout, 15*time.Second),
		WriteTimeout:   config.DurationOr(h.WriteTimeout, 0),
		IdleTimeout:    60 * time.Second,
		MaxUploadBytes: int64(h.MaxUploadMB) << 20,
		Pprof:          h.Pprof,
	}
}

func mapWhatsAppConfig(cfg *config.Config) whatsapp.Config {
	w := cfg.WhatsApp
	return whatsapp.Config{
		StorePath:   w.StorePath,
		LogLevel:    w.LogLevel,
		QRFile:      w.QRFile,
		SendTimeout: config.DurationOr(w.SendTimeout, 30*time.Second),
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}
}

// mapAlertConfig reports false when the alert sink is not configured.
func mapAlertConfig(cfg *config.Config) (alert.Config, bool) {
	t := cfg.Telegram
	if strings.TrimSpace(t.Token) == "" || t.ChatID == 0 {
		return alert.Config{}, false
	}
	return alert.Config{Token: t.Token, ChatID: t.ChatID}, true
}
