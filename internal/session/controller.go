package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"remindbot/internal/domain"
	"remindbot/internal/eventbus"
	"remindbot/internal/settings"
	logx "remindbot/pkg/logx"
)

// ErrNotActive is returned by destination-facing operations while the
// session is not ready.
var ErrNotActive = errors.New("session not active")

type Reconciler interface {
	Reconcile(ctx context.Context, live []domain.Destination, fetchErr error) ([]domain.Destination, error)
}

type Scheduler interface {
	Start(ctx context.Context) error
	Stop() bool
}

type Settings interface {
	Get(ctx context.Context) settings.Settings
}

type Deps struct {
	// Context bounds background work started from provider events.
	Context   context.Context
	Registry  Reconciler
	Scheduler Scheduler
	Settings  Settings
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Info is a point-in-time view of the session.
type Info struct {
	State  State  `json:"state"`
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
	QR     string `json:"qr,omitempty"`
}

type Controller struct {
	p    Provider
	d    Deps
	log  logx.Logger
	base context.Context

	// opMu serializes lifecycle operations (connect, restart, disconnect).
	opMu sync.Mutex

	mu     sync.Mutex
	state  State
	reason string
	qr     string

	wg sync.WaitGroup
}

func New(p Provider, d Deps) *Controller {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	base := d.Context
	if base == nil {
		base = context.Background()
	}
	c := &Controller{
		p:     p,
		d:     d,
		log:   log.With(logx.String("comp", "session")),
		base:  base,
		state: StateUninitialized,
	}
	p.SetHandler(c.handle)
	return c
}

// Active reports whether the session is ready to list chats and send.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{State: c.state, Active: c.state == StateReady, Reason: c.reason, QR: c.qr}
}

// apply runs one transition and publishes the new state. It reports whether
// the state changed.
func (c *Controller) apply(a action, reason string) (State, bool) {
	c.mu.Lock()
	prev := c.state
	next, ok := transition(prev, a)
	if !ok {
		c.mu.Unlock()
		c.log.Debug("session action ignored", logx.String("action", a.String()), logx.String("state", string(prev)))
		return prev, false
	}
	c.state = next
	c.reason = reason
	if next != StateAwaitingPairing {
		c.qr = ""
	}
	c.mu.Unlock()

	if prev != next {
		c.log.Info("session state changed",
			logx.String("from", string(prev)),
			logx.String("to", string(next)),
			logx.String("reason", reason),
		)
		c.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeStatus, Data: eventbus.StatusData{
			State:  string(next),
			Active: next == StateReady,
			Reason: reason,
		}})
	}
	return next, true
}

// Connect initializes the provider when no session is running.
func (c *Controller) Connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Controller) initializeLocked(ctx context.Context) error {
	if _, ok := c.apply(actInitialize, ""); !ok {
		return nil
	}
	if err := c.p.Initialize(ctx); err != nil {
		c.apply(actDisconnected, err.Error())
		return fmt.Errorf("session: initialize: %w", err)
	}
	return nil
}

// Restart destroys the current client (errors are logged, not returned) and
// initializes a new one.
func (c *Controller) Restart(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.apply(actTeardown, "restart")
	if err := c.p.Destroy(ctx); err != nil {
		c.log.Warn("destroy failed during restart", logx.Err(err))
	}
	c.apply(actTornDown, "restart")
	return c.initializeLocked(ctx)
}

// Disconnect stops the scheduler, logs the session out and starts a fresh
// client so a new pairing code is offered.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.d.Scheduler != nil {
		c.d.Scheduler.Stop()
	}
	c.apply(actTeardown, "logout")
	if err := c.p.Logout(ctx); err != nil {
		c.log.Warn("logout failed", logx.Err(err))
	}
	if err := c.p.Destroy(ctx); err != nil {
		c.log.Warn("destroy failed during disconnect", logx.Err(err))
	}
	c.apply(actTornDown, "logout")
	return c.initializeLocked(ctx)
}

// ListGroups returns the group chats visible to the session.
func (c *Controller) ListGroups(ctx context.Context) ([]domain.Destination, error) {
	if !c.Active() {
		c.log.Warn("group listing requested while session inactive")
		return nil, ErrNotActive
	}
	chats, err := c.p.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list chats: %w", err)
	}
	out := make([]domain.Destination, 0, len(chats))
	for _, ch := range chats {
		if ch.IsGroup {
			out = append(out, domain.Destination{ID: ch.ID, Name: ch.Name})
		}
	}
	return out, nil
}

// Send delivers text to destination id.
func (c *Controller) Send(ctx context.Context, id, text string) error {
	if !c.Active() {
		c.log.Warn("send requested while session inactive", logx.String("id", id))
		return ErrNotActive
	}
	if err := c.p.SendText(ctx, id, text); err != nil {
		return fmt.Errorf("session: send to %s: %w", id, err)
	}
	return nil
}

// Sync lists the live groups and reconciles the registry. A listing failure
// is handed to the registry, which keeps its persisted state.
func (c *Controller) Sync(ctx context.Context) ([]domain.Destination, error) {
	if c.d.Registry == nil {
		return nil, nil
	}
	if !c.Active() {
		c.log.Warn("group sync skipped: session inactive")
		return nil, ErrNotActive
	}
	live, err := c.ListGroups(ctx)
	if err != nil {
		c.log.Warn("group listing failed; keeping stored groups", logx.Err(err))
	} else {
		c.log.Info("groups found", logx.Int("count", len(live)))
	}
	synced, rerr := c.d.Registry.Reconcile(ctx, live, err)
	if rerr != nil {
		return synced, rerr
	}
	c.log.Info("groups ready for dispatch", logx.Int("count", len(synced)))
	return synced, nil
}

func (c *Controller) handle(ev Event) {
	switch ev.Kind {
	case EventQR:
		if _, ok := c.apply(actQR, ""); !ok {
			return
		}
		url, err := QRDataURL(ev.Code)
		if err != nil {
			c.log.Error("qr render failed", logx.Err(err))
			return
		}
		c.mu.Lock()
		c.qr = url
		c.mu.Unlock()
		c.log.Info("pairing code generated; scan it to connect")
		c.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeQR, Data: eventbus.QRData{DataURL: url}})
	case EventReady:
		if _, ok := c.apply(actReady, ""); !ok {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.onReady(c.base)
		}()
	case EventDisconnected:
		c.apply(actDisconnected, ev.Reason)
	case EventAuthFailure:
		c.apply(actAuthFailure, ev.Reason)
	default:
		c.log.Debug("unknown provider event", logx.String("kind", string(ev.Kind)))
	}
}

// onReady reconciles the registry and starts the scheduler when enabled.
func (c *Controller) onReady(ctx context.Context) {
	if _, err := c.Sync(ctx); err != nil {
		c.log.Error("post-ready sync failed", logx.Err(err))
		return
	}
	if c.d.Settings == nil || c.d.Scheduler == nil {
		return
	}
	if !c.d.Settings.Get(ctx).Enabled {
		c.log.Info("dispatch disabled; scheduler not started")
		return
	}
	if err := c.d.Scheduler.Start(ctx); err != nil {
		c.log.Error("scheduler start failed", logx.Err(err))
	}
}

// Close waits for background work started by provider events and releases
// the provider.
func (c *Controller) Close(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.apply(actTeardown, "shutdown")
	err := c.p.Destroy(ctx)
	c.apply(actTornDown, "shutdown")

	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}
