// Package dashboard serves the operator control surface: a JSON API, a
// server-sent event stream of status, pairing, log and cycle events, and the
// Prometheus metrics endpoint.
package dashboard

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"remindbot/internal/domain"
	"remindbot/internal/eventbus"
	"remindbot/internal/history"
	"remindbot/internal/scheduler"
	"remindbot/internal/session"
	"remindbot/internal/settings"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Session interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Info() session.Info
	Active() bool
	Sync(ctx context.Context) ([]domain.Destination, error)
}

type Registry interface {
	Synchronized(ctx context.Context) []domain.Destination
	NotSynchronized(ctx context.Context) []domain.Destination
	Promote(ctx context.Context, d domain.Destination) error
	Demote(ctx context.Context, d domain.Destination) error
}

type History interface {
	Snapshot(ctx context.Context) history.Snapshot
	Paginate(ctx context.Context, page, size int) history.Page
}

type Approvals interface {
	Set(id, msg string)
	Discard(id string) error
}

type Generator interface {
	Generate(ctx context.Context, name, id string, s settings.Settings) (string, error)
	HasKey() bool
}

type Documents interface {
	Save(id string, r io.Reader) (int64, error)
}

type Settings interface {
	Get(ctx context.Context) settings.Settings
	Update(ctx context.Context, u settings.Update) (settings.Settings, error)
	SetEnabled(ctx context.Context, enabled bool) (settings.Settings, error)
	SetPrompts(ctx context.Context, withDocument, withoutDocument string) (settings.Settings, error)
	Ping(ctx context.Context) error
}

type Scheduler interface {
	Start(ctx context.Context) error
	Stop() bool
	Snapshot() scheduler.Snapshot
}

type Deps struct {
	Session   Session
	Registry  Registry
	History   History
	Approvals Approvals
	Generator Generator
	Documents Documents
	Settings  Settings
	Scheduler Scheduler
	Bus       eventbus.Bus
	// Store receives the operator audit trail. Optional.
	Store    storage.Store
	Gatherer prometheus.Gatherer
	Log      logx.Logger
}
