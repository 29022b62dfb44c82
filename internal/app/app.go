package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"remindbot/internal/approval"
	"remindbot/internal/config"
	"remindbot/internal/dashboard"
	"remindbot/internal/dispatch"
	"remindbot/internal/eventbus"
	"remindbot/internal/history"
	"remindbot/internal/registry"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/session"
	"remindbot/internal/settings"
	"remindbot/internal/storage"
	"remindbot/internal/textgen"
	"remindbot/internal/transport/telegram/alert"
	"remindbot/internal/transport/whatsapp"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *prometheus.Registry

	// lifeCancel ends the base context of cycles and post-ready work. It
	// outlives the supervisor; Stop calls it once a running cycle had its
	// chance to finish.
	lifeCancel context.CancelFunc

	settings  *settings.Store
	registry  *registry.Registry
	history   *history.Store
	approvals *approval.Cache
	gen       *textgen.Client
	engine    *dispatch.Engine
	sched     *scheduler.Service
	session   *session.Controller
	dash      *dashboard.Service
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	provider session.Provider
}

// WithProvider replaces the WhatsApp client (tests, alternative transports).
func WithProvider(p session.Provider) Option {
	return func(o *options) { o.provider = p }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "boot"))
	bus := eventbus.New()

	// The alert sink is optional; a nil *alert.Sender must not reach logx as a
	// non-nil interface.
	var sender logx.Sender
	if ac, ok := mapAlertConfig(cfg); ok {
		s, err := alert.New(ac, bootLog.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram alerts: %w", err)
		}
		sender = s
	}

	logSvc, log := logx.New(cfg.Logging.LogxConfig(), bus, sender)
	log = log.With(logx.String("comp", "app"))

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	life, lifeCancel := context.WithCancel(context.Background())
	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		reg:        reg,
		lifeCancel: lifeCancel,
		settings:   settings.NewStore(store, log),
		registry:   registry.New(store, log),
		history:    history.NewStore(store, log),
		approvals:  approval.New(),
	}

	if err := a.settings.Ensure(context.Background()); err != nil {
		log.Warn("settings document could not be created", logx.Err(err))
	}

	docs := textgen.NewDocuments(cfg.Generator.DocumentsDir, cfg.Generator.DocumentChars)
	a.gen = textgen.New(mapGeneratorConfig(cfg), docs, log)

	a.sched = scheduler.New(mapSchedulerConfig(cfg), scheduler.Deps{
		Context:  life,
		Settings: a.settings,
		Cycle:    a.runCycle,
		Log:      log,
	})

	provider := o.provider
	if provider == nil {
		provider = whatsapp.New(mapWhatsAppConfig(cfg), log)
	}
	a.session = session.New(provider, session.Deps{
		Context:   life,
		Registry:  a.registry,
		Scheduler: a.sched,
		Settings:  a.settings,
		Bus:       bus,
		Log:       log,
	})

	a.engine = dispatch.New(dispatch.Deps{
		Session:   a.session,
		Registry:  a.registry,
		History:   a.history,
		Approvals: a.approvals,
		Settings:  a.settings,
		Generator: a.gen,
		Bus:       bus,
		Metrics:   dispatch.NewMetrics(reg),
		Log:       log,
	})

	a.dash = dashboard.New(mapDashboardConfig(cfg), dashboard.Deps{
		Session:   a.session,
		Registry:  a.registry,
		History:   a.history,
		Approvals: a.approvals,
		Generator: a.gen,
		Documents: docs,
		Settings:  a.settings,
		Scheduler: a.sched,
		Bus:       bus,
		Store:     store,
		Gatherer:  reg,
		Log:       log,
	})

	if !a.gen.HasKey() {
		log.Warn("generator api key missing; fallback messages will be sent")
	}
	return a, nil
}

// runCycle adapts the dispatch engine to the scheduler trigger. An overlapping
// trigger is not an error.
func (a *App) runCycle(ctx context.Context) error {
	_, err := a.engine.RunCycle(ctx)
	if errors.Is(err, dispatch.ErrBusy) {
		a.log.Warn("cycle still running; trigger skipped")
		return nil
	}
	return err
}

// Addr returns the dashboard listen address once it is bound.
func (a *App) Addr() string { return a.dash.Addr() }

// Ready is closed when the dashboard is accepting connections.
func (a *App) Ready() <-chan struct{} { return a.dash.Ready() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.dash.Start(a.sup.Context())

	// Pairing can take minutes; a failed first attempt is retried from the dashboard.
	a.sup.Go0("session.connect", func(c context.Context) {
		if err := a.session.Connect(c); err != nil {
			a.log.Error("session connect failed", logx.Err(err))
		}
	})

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					// Log lines are bus events too; skip them to avoid an echo loop.
					if e.Type == eventbus.TypeLog {
						continue
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes the live-reloadable sections to their components.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Debug("config change summary", fields...)

	if pending := ch.NeedsRestart(); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}
	if ch.Has("logging") {
		a.logs.Apply(newCfg.Logging.LogxConfig())
	}
	if ch.Has("generator") {
		if oldCfg.Generator.DocumentsDir != newCfg.Generator.DocumentsDir ||
			oldCfg.Generator.DocumentChars != newCfg.Generator.DocumentChars {
			a.log.Warn("generator document settings changed; restart required")
		}
		a.gen.Apply(mapGeneratorConfig(newCfg))
	}
	if ch.Has("scheduler") {
		a.sched.Apply(mapSchedulerConfig(newCfg))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		stepCtx := ctx
		if limit > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				limit = min(limit, max(time.Until(dl), 0))
			}
			if limit > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, limit)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	// Order: stop new triggers, let a running cycle finish, then release the
	// session, the surfaces and storage.
	step("scheduler", time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	step("cycles", 10*time.Second, func(c context.Context) error {
		defer a.lifeCancel()
		for a.engine.Running() {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
		return nil
	})
	step("session", 5*time.Second, func(c context.Context) error { return a.session.Close(c) })
	step("dashboard", 3*time.Second, func(c context.Context) error { a.dash.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if c.Err() != nil {
			return fmt.Errorf("%w (still running: %s)", err, strings.Join(a.sup.Tasks(), ","))
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
