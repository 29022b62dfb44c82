package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"remindbot/internal/eventbus"
)

type Config struct {
	Level     string
	Console   bool
	File      FileConfig
	Dashboard DashboardConfig
	Telegram  TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// DashboardConfig controls the log stream pushed to dashboard subscribers.
type DashboardConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// TelegramConfig controls the alert sink.
type TelegramConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Sender delivers a rendered alert to an operator chat.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

const defaultLogFile = "./remindbot.log"

// Service owns the live logger and its outputs.
type Service struct {
	live atomic.Pointer[zerolog.Logger]
	bus  eventbus.Bus

	mu     sync.Mutex
	file   *os.File
	sender Sender
	alerts *alertQueue
}

// New applies cfg and returns the Service with its root Logger. bus and
// sender may be nil.
func New(cfg Config, bus eventbus.Bus, sender Sender) (*Service, Logger) {
	setGlobals()
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{bus: bus, sender: sender}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() *zerolog.Logger { return s.live.Load() }

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender swaps the alert sender. nil drops alerts.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) currentSender() Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender
}

// Apply rebuilds the outputs from cfg. Loggers already handed out switch
// over on their next event.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}
	if cfg.Dashboard.Enabled {
		outs = append(outs, newSink(cfg.Dashboard.MinLevel, zerolog.InfoLevel, cfg.Dashboard.RatePerSec, 20, s.publish))
	}
	if cfg.Telegram.Enabled {
		if s.alerts == nil {
			s.alerts = startAlertQueue(256, s.currentSender)
		}
		outs = append(outs, newSink(cfg.Telegram.MinLevel, zerolog.WarnLevel, cfg.Telegram.RatePerSec, 1, s.alerts.push))
		if s.sender == nil {
			fmt.Fprintln(os.Stderr, "logx: telegram alerts enabled but no sender is configured")
		}
	}
	if len(outs) == 0 {
		outs = append(outs, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.live.Store(&zl)
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

// publish forwards a dashboard log line on the event bus.
func (s *Service) publish(level zerolog.Level, p []byte) {
	line := render(p, false)
	if line == "" {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeLog,
		Data: eventbus.LogData{Level: level.String(), Line: line},
	})
}

// Close stops the alert worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f, q := s.file, s.alerts
	s.file, s.alerts = nil, nil
	s.mu.Unlock()

	if q != nil {
		q.stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}
