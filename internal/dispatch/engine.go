// Package dispatch runs dispatch cycles: for every synchronized destination
// it resolves a message (pre-approved or freshly generated without repeating
// recent history), sends it and records it.
package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/domain"
	"remindbot/internal/eventbus"
	"remindbot/internal/history"
	"remindbot/internal/settings"
	"remindbot/internal/textgen"
	logx "remindbot/pkg/logx"
)

// ErrBusy is returned when a cycle is requested while one is running.
var ErrBusy = errors.New("dispatch cycle already running")

// Session is the destination-facing side of the session controller.
type Session interface {
	Active() bool
	Send(ctx context.Context, id, text string) error
}

type Registry interface {
	Synchronized(ctx context.Context) []domain.Destination
}

type History interface {
	Snapshot(ctx context.Context) history.Snapshot
	Append(ctx context.Context, id, name, message string) error
}

type Approvals interface {
	Take(id string) (string, bool)
}

type Settings interface {
	Get(ctx context.Context) settings.Settings
}

// Reasons a cycle ended without attempting any destination.
const (
	SkipInactive = "session inactive"
	SkipEmpty    = "no synchronized groups"
)

// CycleReport summarizes one cycle. It is published on the event bus.
type CycleReport struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Destinations int           `json:"destinations"`
	Sent         int           `json:"sent"`
	FromCache    int           `json:"from_cache"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	SkipReason   string        `json:"skip_reason,omitempty"`
}

type Deps struct {
	Session   Session
	Registry  Registry
	History   History
	Approvals Approvals
	Settings  Settings
	Generator textgen.Generator
	Bus       eventbus.Bus
	Metrics   *Metrics
	Log       logx.Logger
}

type Engine struct {
	d       Deps
	log     logx.Logger
	running atomic.Bool

	// sleep waits between sends; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(d Deps) *Engine {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	return &Engine{
		d:     d,
		log:   log.With(logx.String("comp", "dispatch")),
		sleep: sleepCtx,
		now:   time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Running reports whether a cycle is in flight.
func (e *Engine) Running() bool { return e.running.Load() }

// RunCycle executes one dispatch cycle. Destinations are processed strictly
// in registry order with the configured delay between them; a failure on
// one destination never aborts the rest. ctx cancellation stops the cycle
// at the next wait or call.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.d.Metrics.cycle("busy")
		e.log.Warn("dispatch cycle skipped: previous cycle still running")
		return CycleReport{}, ErrBusy
	}
	defer e.running.Store(false)

	rep := CycleReport{ID: uuid.New().String(), StartedAt: e.now()}
	log := e.log.With(logx.String("cycle", rep.ID))

	if !e.d.Session.Active() {
		rep.SkipReason = SkipInactive
		e.d.Metrics.cycle("inactive")
		log.Warn("dispatch cycle skipped", logx.String("reason", rep.SkipReason))
		e.publish(rep)
		return rep, nil
	}

	dests := e.d.Registry.Synchronized(ctx)
	if len(dests) == 0 {
		rep.SkipReason = SkipEmpty
		e.d.Metrics.cycle("empty")
		log.Warn("dispatch cycle skipped", logx.String("reason", rep.SkipReason))
		e.publish(rep)
		return rep, nil
	}
	rep.Destinations = len(dests)

	cfg := e.d.Settings.Get(ctx)
	snap := e.d.History.Snapshot(ctx)
	log.Info("dispatch cycle started", logx.Int("groups", len(dests)), logx.Duration("send_delay", cfg.SendDelay()))

	var err error
	for i, dest := range dests {
		if i > 0 {
			if err = e.sleep(ctx, cfg.SendDelay()); err != nil {
				break
			}
		}
		e.dispatchOne(ctx, log, dest, cfg, snap, &rep)
		if err = ctx.Err(); err != nil {
			break
		}
	}

	rep.Duration = e.now().Sub(rep.StartedAt)
	e.d.Metrics.cycle("completed")
	e.d.Metrics.observe(rep)
	log.Info("dispatch cycle finished",
		logx.Int("sent", rep.Sent),
		logx.Int("from_cache", rep.FromCache),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Duration),
	)
	e.publish(rep)
	return rep, err
}

func (e *Engine) dispatchOne(ctx context.Context, log logx.Logger, dest domain.Destination, cfg settings.Settings, snap history.Snapshot, rep *CycleReport) {
	log = log.With(logx.String("group", dest.Name), logx.String("id", dest.ID))

	source := "generated"
	text, cached := e.d.Approvals.Take(dest.ID)
	if cached {
		// Operator-approved text is trusted as is.
		source = "cache"
	} else {
		out, err := ResolveMessage(ctx, history.RecentFrom(snap, dest.ID, history.DefaultWindow),
			func(ctx context.Context) (string, error) {
				return e.d.Generator.Generate(ctx, dest.Name, dest.ID, cfg)
			}, MaxRetries)
		e.d.Metrics.attempt(out.Attempts)
		if err != nil {
			rep.Failed++
			e.d.Metrics.message("failed", source)
			log.Error("message generation failed", logx.Err(err))
			return
		}
		if !out.Sent {
			rep.Skipped++
			e.d.Metrics.message("duplicate", source)
			log.Warn("only repeated messages generated; skipping group this cycle", logx.Int("attempts", out.Attempts))
			return
		}
		text = out.Text
	}

	if err := e.d.Session.Send(ctx, dest.ID, text); err != nil {
		rep.Failed++
		e.d.Metrics.message("failed", source)
		log.Error("send failed", logx.Err(err))
		return
	}
	rep.Sent++
	if cached {
		rep.FromCache++
	}
	e.d.Metrics.message("sent", source)

	if err := e.d.History.Append(ctx, dest.ID, dest.Name, text); err != nil {
		log.Error("history append failed", logx.Err(err))
	}
	log.Info("message sent", logx.String("source", source))
}

func (e *Engine) publish(rep CycleReport) {
	e.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeCycle, Data: rep})
}
