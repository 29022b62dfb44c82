package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

// Editors write in bursts; wait this long after the last event.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config whenever the file changes, until ctx is
// canceled. The parent directory is watched so atomic renames are seen. A
// broken watcher is recreated with backoff. Invalid files are logged and
// ignored; the last good config stays committed.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, name := filepath.Split(m.path)
	if dir == "" {
		dir = "."
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reloadDebounce
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	d := &debouncer{fn: func() { m.reload() }}
	defer d.stop()

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err == nil {
			bo.Reset()
			m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))
			m.watchEvents(ctx, w, name, d)
			_ = w.Close()
			if ctx.Err() != nil {
				break
			}
			err = errors.New("watcher stopped")
		}

		wait := bo.NextBackOff()
		m.log.Warn("config watcher unavailable; retrying", logx.String("dir", dir), logx.Err(err), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

// watchEvents returns when ctx ends or the watcher breaks.
func (m *ConfigManager) watchEvents(ctx context.Context, w *fsnotify.Watcher, name string, d *debouncer) {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&relevant != 0 {
				d.trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				d.trigger()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

// reload commits and publishes the file when its content changed.
func (m *ConfigManager) reload() {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
		return
	}
	if !m.commit(cfg) {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return
	}
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path))
}

type debouncer struct {
	fn    func()
	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(reloadDebounce, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
