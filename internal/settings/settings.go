// Package settings owns the operational parameters the operator edits from
// the dashboard: dispatch interval, enabled flag, per-send delay and prompt
// templates. They are persisted as the "config" document.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindbot/internal/domain"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const (
	DefaultIntervalMinutes = 30
	DefaultSendDelayMs     = 15000
	MinSendDelayMs         = 1000

	DefaultPromptWithDocument = "Você é um assistente de um curso chamado \"{{nomeGrupo}}\". " +
		"Com base no material abaixo, escreva uma mensagem curta e amigável para o grupo do WhatsApp " +
		"lembrando os alunos de estudar e destacando um tópico do conteúdo.\n\nMaterial:\n{{conteudoPDF}}"
	DefaultPromptWithoutDocument = "Escreva uma mensagem curta e amigável para o grupo do WhatsApp do curso " +
		"\"{{nomeGrupo}}\", lembrando os alunos de manter a rotina de estudos."
)

// Settings is the persisted operational configuration.
// JSON keys match the layout of existing config.json files.
type Settings struct {
	IntervalMinutes       int    `json:"intervaloMinutos"`
	Enabled               bool   `json:"habilitado"`
	SendDelayMs           int    `json:"delayEnvioMs"`
	PromptWithDocument    string `json:"promptComPdf"`
	PromptWithoutDocument string `json:"promptSemPdf"`
}

func Defaults() Settings {
	return Settings{
		IntervalMinutes:       DefaultIntervalMinutes,
		Enabled:               true,
		SendDelayMs:           DefaultSendDelayMs,
		PromptWithDocument:    DefaultPromptWithDocument,
		PromptWithoutDocument: DefaultPromptWithoutDocument,
	}
}

func (s Settings) SendDelay() time.Duration {
	return time.Duration(s.SendDelayMs) * time.Millisecond
}

func (s Settings) Validate() error {
	if s.IntervalMinutes < 1 {
		return &domain.ValidationError{Field: "intervaloMinutos", Reason: "must be >= 1 minute"}
	}
	if s.SendDelayMs < MinSendDelayMs {
		return &domain.ValidationError{Field: "delayEnvioMs", Reason: fmt.Sprintf("must be >= %d ms", MinSendDelayMs)}
	}
	if strings.TrimSpace(s.PromptWithDocument) == "" || strings.TrimSpace(s.PromptWithoutDocument) == "" {
		return &domain.ValidationError{Field: "prompts", Reason: "both prompts are required"}
	}
	return nil
}

// repair replaces out-of-range or missing fields with defaults.
func (s Settings) repair() Settings {
	def := Defaults()
	if s.IntervalMinutes < 1 {
		s.IntervalMinutes = def.IntervalMinutes
	}
	if s.SendDelayMs < MinSendDelayMs {
		s.SendDelayMs = def.SendDelayMs
	}
	if strings.TrimSpace(s.PromptWithDocument) == "" {
		s.PromptWithDocument = def.PromptWithDocument
	}
	if strings.TrimSpace(s.PromptWithoutDocument) == "" {
		s.PromptWithoutDocument = def.PromptWithoutDocument
	}
	return s
}

// Update is a partial change. Nil fields keep their current value.
type Update struct {
	IntervalMinutes       *int    `json:"intervaloMinutos,omitempty"`
	Enabled               *bool   `json:"habilitado,omitempty"`
	SendDelayMs           *int    `json:"delayEnvioMs,omitempty"`
	PromptWithDocument    *string `json:"promptComPdf,omitempty"`
	PromptWithoutDocument *string `json:"promptSemPdf,omitempty"`
}

func (u Update) apply(s Settings) Settings {
	if u.IntervalMinutes != nil {
		s.IntervalMinutes = *u.IntervalMinutes
	}
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.SendDelayMs != nil {
		s.SendDelayMs = *u.SendDelayMs
	}
	if u.PromptWithDocument != nil {
		s.PromptWithDocument = *u.PromptWithDocument
	}
	if u.PromptWithoutDocument != nil {
		s.PromptWithoutDocument = *u.PromptWithoutDocument
	}
	return s
}

// Store loads and persists Settings. Reads always go to storage so edits
// made outside the process are picked up.
type Store struct {
	mu  sync.Mutex
	st  storage.Store
	log logx.Logger
}

func NewStore(st storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{st: st, log: log}
}

// Get returns the stored settings. A missing, unreadable or corrupt document
// yields defaults; individual bad fields are replaced by their default.
func (s *Store) Get(ctx context.Context) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) Settings {
	cur := Defaults()
	if _, err := storage.LoadJSON(ctx, s.st, storage.KeySettings, &cur); err != nil {
		s.log.Warn("settings unreadable; using defaults", logx.Err(err))
		return Defaults()
	}
	return cur.repair()
}

// Update validates and persists a partial change. On a validation error the
// stored settings are left untouched.
func (s *Store) Update(ctx context.Context, u Update) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.loadLocked(ctx)
	next := u.apply(prev)
	if err := next.Validate(); err != nil {
		return prev, err
	}
	changed, err := storage.SaveJSON(ctx, s.st, storage.KeySettings, next)
	if err != nil {
		return prev, fmt.Errorf("settings: persist: %w", err)
	}
	if changed {
		s.log.Info("settings updated",
			logx.Int("interval_minutes", next.IntervalMinutes),
			logx.Int("send_delay_ms", next.SendDelayMs),
			logx.Bool("enabled", next.Enabled),
		)
	}
	return next, nil
}

func (s *Store) SetEnabled(ctx context.Context, enabled bool) (Settings, error) {
	return s.Update(ctx, Update{Enabled: &enabled})
}

// SetPrompts replaces both templates; both are required.
func (s *Store) SetPrompts(ctx context.Context, withDocument, withoutDocument string) (Settings, error) {
	if strings.TrimSpace(withDocument) == "" || strings.TrimSpace(withoutDocument) == "" {
		return s.Get(ctx), &domain.ValidationError{Field: "prompts", Reason: "both prompts are required"}
	}
	return s.Update(ctx, Update{PromptWithDocument: &withDocument, PromptWithoutDocument: &withoutDocument})
}

// ErrMissing is returned by Ping when no settings document has been written.
var ErrMissing = errors.New("settings document missing")

// Ensure writes the defaults when no settings document exists yet. An
// existing document is left as is, even when it is corrupt.
func (s *Store) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok, err := s.st.Load(ctx, storage.KeySettings)
	if err != nil || ok {
		return err
	}
	if _, err := storage.SaveJSON(ctx, s.st, storage.KeySettings, Defaults()); err != nil {
		return fmt.Errorf("settings: persist defaults: %w", err)
	}
	s.log.Info("settings document created with defaults")
	return nil
}

// Ping checks that the settings document exists and is readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.st.Ping(ctx); err != nil {
		return err
	}
	_, ok, err := s.st.Load(ctx, storage.KeySettings)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMissing
	}
	return nil
}
