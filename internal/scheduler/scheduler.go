package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/settings"
	logx "remindbot/pkg/logx"
)

// ErrNoJob is returned by Start when no cycle function was configured.
var ErrNoJob = errors.New("scheduler: no cycle job configured")

// Settings provides the current operational settings.
type Settings interface {
	Get(ctx context.Context) settings.Settings
}

// CycleFunc runs one dispatch cycle.
type CycleFunc func(ctx context.Context) error

type Config struct {
	Timezone string // IANA TZ, e.g. "America/Sao_Paulo"; empty means local time
}

type Deps struct {
	// Context is the base context cycles run on. Defaults to context.Background().
	Context  context.Context
	Settings Settings
	Cycle    CycleFunc
	Log      logx.Logger
}

type Service struct {
	mu sync.Mutex

	log      logx.Logger
	cfg      Config
	loc      *time.Location
	base     context.Context
	settings Settings
	cycle    CycleFunc

	c       *cron.Cron
	entryID cron.EntryID
	rule    string
	job     cron.Job
	started time.Time
}

// Snapshot is the dashboard view of the scheduler.
type Snapshot struct {
	Running   bool      `json:"running"`
	Rule      string    `json:"rule,omitempty"`
	Timezone  string    `json:"timezone"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Next      time.Time `json:"next,omitzero"`
	Prev      time.Time `json:"prev,omitzero"`
}

func New(cfg Config, d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	base := d.Context
	if base == nil {
		base = context.Background()
	}
	s := &Service{
		log:      log.With(logx.String("comp", "scheduler")),
		cfg:      cfg,
		base:     base,
		settings: d.Settings,
		cycle:    d.Cycle,
	}
	s.loc = s.loadLocationLocked()
	return s
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local time", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Apply updates the scheduler config. A timezone change restarts a running
// scheduler so the rule is re-evaluated in the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	s.loc = s.loadLocationLocked()
	running := s.c != nil
	s.mu.Unlock()

	if running && oldTZ != strings.TrimSpace(cfg.Timezone) {
		if err := s.Restart(s.base); err != nil {
			s.log.Error("restart after timezone change failed", logx.Err(err))
		}
	}
}

// Start (re)installs the single cycle job using the interval from the
// current settings. Any previous job is replaced.
func (s *Service) Start(ctx context.Context) error {
	if s.cycle == nil {
		return ErrNoJob
	}
	minutes := settings.DefaultIntervalMinutes
	if s.settings != nil {
		minutes = s.settings.Get(ctx).IntervalMinutes
	}
	rule := Rule(minutes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: s.log})).Then(cron.FuncJob(s.fire))
	id, err := c.AddJob(rule, job)
	if err != nil {
		return fmt.Errorf("scheduler: add job %q: %w", rule, err)
	}
	c.Start()

	s.c = c
	s.entryID = id
	s.rule = rule
	s.job = job
	s.started = time.Now()
	s.log.Info("scheduler started",
		logx.String("rule", rule),
		logx.Int("interval_minutes", minutes),
		logx.String("tz", s.loc.String()),
		logx.Time("next", c.Entry(id).Next),
	)
	return nil
}

// Stop removes the job. It is idempotent and does not wait for an in-flight
// cycle. It reports whether a job was running.
func (s *Service) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Service) stopLocked() bool {
	if s.c == nil {
		return false
	}
	s.c.Stop()
	s.c = nil
	s.entryID = 0
	s.rule = ""
	s.job = nil
	s.started = time.Time{}
	s.log.Info("scheduler stopped")
	return true
}

// Restart is Stop followed by Start.
func (s *Service) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Running reports whether a job is installed.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Running:   s.c != nil,
		Rule:      s.rule,
		Timezone:  s.loc.String(),
		StartedAt: s.started,
	}
	if s.c != nil && s.entryID != 0 {
		e := s.c.Entry(s.entryID)
		snap.Next = e.Next
		snap.Prev = e.Prev
	}
	return snap
}

// fire runs one cycle on the base context and logs the next trigger time.
func (s *Service) fire() {
	start := time.Now()
	if err := s.cycle(s.base); err != nil {
		s.log.Warn("scheduled cycle ended with error", logx.Err(err), logx.Duration("took", time.Since(start)))
	}
	if next := s.Snapshot().Next; !next.IsZero() {
		s.log.Info("next dispatch cycle", logx.Time("at", next))
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		l.log.Warn("cycle still running; trigger skipped", kvFields(kv)...)
		return
	}
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
