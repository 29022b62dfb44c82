// Package registry keeps the two disjoint destination partitions:
// synchronized (approved for dispatch) and not synchronized (discovered,
// pending approval).
//
// The live group listing only ever feeds the not-synchronized side. An
// approved destination leaves the synchronized set only through Demote.
package registry

import (
	"context"
	"fmt"
	"sync"

	"remindbot/internal/domain"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Registry struct {
	mu  sync.Mutex
	st  storage.Store
	log logx.Logger
}

func New(st storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{st: st, log: log}
}

// load reads a partition. Unreadable documents count as empty.
func (r *Registry) load(ctx context.Context, key string) []domain.Destination {
	var list []domain.Destination
	if _, err := storage.LoadJSON(ctx, r.st, key, &list); err != nil {
		r.log.Warn("registry unreadable; treating as empty", logx.String("key", key), logx.Err(err))
		return nil
	}
	return list
}

func (r *Registry) save(ctx context.Context, key string, list []domain.Destination) error {
	if list == nil {
		list = []domain.Destination{}
	}
	if _, err := storage.SaveJSON(ctx, r.st, key, list); err != nil {
		return fmt.Errorf("registry: persist %s: %w", key, err)
	}
	return nil
}

// Reconcile folds a live listing into the registry.
//
// fetchErr != nil: only the persisted synchronized set is de-duplicated
// (written back if that changed anything). Otherwise the not-synchronized set
// becomes live minus synchronized. Synchronized is never pruned.
func (r *Registry) Reconcile(ctx context.Context, live []domain.Destination, fetchErr error) ([]domain.Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	synced, dup := domain.Dedup(r.load(ctx, storage.KeySynchronized))
	if dup {
		if err := r.save(ctx, storage.KeySynchronized, synced); err != nil {
			return synced, err
		}
		r.log.Info("registry de-duplicated", logx.Int("synchronized", len(synced)))
	}

	if fetchErr != nil {
		r.log.Warn("group listing failed; keeping saved groups", logx.Err(fetchErr), logx.Int("synchronized", len(synced)))
		return synced, nil
	}

	pending := make([]domain.Destination, 0, len(live))
	for _, d := range live {
		if d.ID == "" || domain.IndexOf(synced, d.ID) >= 0 {
			continue
		}
		pending = append(pending, d)
	}
	pending, _ = domain.Dedup(pending)
	if err := r.save(ctx, storage.KeyNotSynchronized, pending); err != nil {
		return synced, err
	}
	r.log.Info("groups reconciled",
		logx.Int("live", len(live)),
		logx.Int("synchronized", len(synced)),
		logx.Int("not_synchronized", len(pending)),
	)
	return synced, nil
}

// Promote moves d into the synchronized partition. Idempotent.
func (r *Registry) Promote(ctx context.Context, d domain.Destination) error {
	if err := d.Valid(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	synced, _ := domain.Dedup(r.load(ctx, storage.KeySynchronized))
	if domain.IndexOf(synced, d.ID) < 0 {
		synced = append(synced, d)
	}
	pending := remove(r.load(ctx, storage.KeyNotSynchronized), d.ID)

	if err := r.save(ctx, storage.KeySynchronized, synced); err != nil {
		return err
	}
	if err := r.save(ctx, storage.KeyNotSynchronized, pending); err != nil {
		return err
	}
	r.log.Info("group synchronized", logx.String("group", d.Name), logx.String("id", d.ID), logx.Int("synchronized", len(synced)))
	return nil
}

// Demote moves d back to the not-synchronized partition. Idempotent.
func (r *Registry) Demote(ctx context.Context, d domain.Destination) error {
	if err := d.Valid(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	synced := remove(r.load(ctx, storage.KeySynchronized), d.ID)
	pending, _ := domain.Dedup(r.load(ctx, storage.KeyNotSynchronized))
	if domain.IndexOf(pending, d.ID) < 0 {
		pending = append(pending, d)
	}

	if err := r.save(ctx, storage.KeySynchronized, synced); err != nil {
		return err
	}
	if err := r.save(ctx, storage.KeyNotSynchronized, pending); err != nil {
		return err
	}
	r.log.Info("group desynchronized", logx.String("group", d.Name), logx.String("id", d.ID), logx.Int("synchronized", len(synced)))
	return nil
}

// Synchronized re-reads the approved partition from storage, de-duplicated.
func (r *Registry) Synchronized(ctx context.Context) []domain.Destination {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, _ := domain.Dedup(r.load(ctx, storage.KeySynchronized))
	return out
}

func (r *Registry) NotSynchronized(ctx context.Context) []domain.Destination {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, _ := domain.Dedup(r.load(ctx, storage.KeyNotSynchronized))
	return out
}

func remove(list []domain.Destination, id string) []domain.Destination {
	out := make([]domain.Destination, 0, len(list))
	for _, d := range list {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}
