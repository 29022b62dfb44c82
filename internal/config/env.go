package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the environment variables that override the config file.
// Pointer fields stay nil when the variable is unset.
type envOverrides struct {
	HTTPAddr       *string  `envconfig:"REMINDBOT_HTTP_ADDR"`
	StorageDriver  *string  `envconfig:"REMINDBOT_STORAGE_DRIVER"`
	StoragePath    *string  `envconfig:"REMINDBOT_STORAGE_PATH"`
	LogLevel       *string  `envconfig:"REMINDBOT_LOG_LEVEL"`
	WhatsAppStore  *string  `envconfig:"REMINDBOT_WHATSAPP_STORE"`
	Timezone       *string  `envconfig:"REMINDBOT_TIMEZONE"`
	DocumentsDir   *string  `envconfig:"REMINDBOT_DOCUMENTS_DIR"`
	TelegramToken  *string  `envconfig:"REMINDBOT_TELEGRAM_TOKEN"`
	TelegramChatID *int64   `envconfig:"REMINDBOT_TELEGRAM_CHAT_ID"`
	APIBase        *string  `envconfig:"OPENAI_API_BASE"`
	APIKey         *string  `envconfig:"OPENAI_API_KEY"`
	Model          *string  `envconfig:"OPENAI_MODEL"`
	MaxTokens      *int     `envconfig:"OPENAI_MAX_TOKENS"`
	Temperature    *float64 `envconfig:"OPENAI_TEMPERATURE"`
}

// ApplyEnv overlays environment variables on cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	setStr(&cfg.HTTP.Addr, env.HTTPAddr)
	setStr(&cfg.Storage.Driver, env.StorageDriver)
	setStr(&cfg.Storage.Path, env.StoragePath)
	setStr(&cfg.Logging.Level, env.LogLevel)
	setStr(&cfg.WhatsApp.StorePath, env.WhatsAppStore)
	setStr(&cfg.Scheduler.Timezone, env.Timezone)
	setStr(&cfg.Generator.DocumentsDir, env.DocumentsDir)
	setStr(&cfg.Telegram.Token, env.TelegramToken)
	setStr(&cfg.Generator.APIBase, env.APIBase)
	setStr(&cfg.Generator.APIKey, env.APIKey)
	setStr(&cfg.Generator.Model, env.Model)
	if env.TelegramChatID != nil {
		cfg.Telegram.ChatID = *env.TelegramChatID
	}
	if env.MaxTokens != nil {
		cfg.Generator.MaxTokens = *env.MaxTokens
	}
	if env.Temperature != nil {
		cfg.Generator.Temperature = *env.Temperature
	}
	return nil
}

func setStr(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}
