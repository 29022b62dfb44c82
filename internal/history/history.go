// Package history records sent messages per destination. It feeds the
// duplicate-avoidance window and the dashboard's message log.
package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const (
	// MaxPerDestination bounds the stored entries for one destination.
	MaxPerDestination = 50
	// DefaultWindow is how many recent messages duplicate checks look at.
	DefaultWindow = 10
)

// Entry is one sent message. JSON keys match the persisted layout.
type Entry struct {
	DestinationName string    `json:"nomeGrupo"`
	Message         string    `json:"mensagem"`
	SentAt          time.Time `json:"horario"`
}

// Snapshot maps destination id to its entries, oldest first.
type Snapshot map[string][]Entry

// Page is one slice of the flattened, newest-first history.
type Page struct {
	Items      []Entry `json:"mensagens"`
	Page       int     `json:"paginaAtual"`
	TotalPages int     `json:"totalPaginas"`
	Total      int     `json:"totalMensagens"`
}

type Store struct {
	mu  sync.Mutex
	st  storage.Store
	log logx.Logger
	now func() time.Time
}

func NewStore(st storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{st: st, log: log, now: time.Now}
}

func (s *Store) loadLocked(ctx context.Context) Snapshot {
	snap := Snapshot{}
	if _, err := storage.LoadJSON(ctx, s.st, storage.KeyHistory, &snap); err != nil {
		s.log.Warn("history unreadable; treating as empty", logx.Err(err))
		return Snapshot{}
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap
}

// Snapshot returns the whole mapping. Dispatch cycles load it once.
func (s *Store) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Recent returns the trimmed bodies of the last window entries for id,
// most recent last.
func (s *Store) Recent(ctx context.Context, id string, window int) []string {
	return RecentFrom(s.Snapshot(ctx), id, window)
}

func RecentFrom(snap Snapshot, id string, window int) []string {
	if window <= 0 {
		window = DefaultWindow
	}
	entries := snap[id]
	if len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSpace(e.Message))
	}
	return out
}

// Append records a sent message and truncates id's sequence to the newest
// MaxPerDestination entries.
func (s *Store) Append(ctx context.Context, id, name, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.loadLocked(ctx)
	entries := append(snap[id], Entry{DestinationName: name, Message: message, SentAt: s.now().UTC()})
	if len(entries) > MaxPerDestination {
		entries = entries[len(entries)-MaxPerDestination:]
	}
	snap[id] = entries

	if _, err := storage.SaveJSON(ctx, s.st, storage.KeyHistory, snap); err != nil {
		return fmt.Errorf("history: persist: %w", err)
	}
	return nil
}

// MaxPageSize caps the page size accepted by Paginate.
const MaxPageSize = 100

// Paginate flattens every destination's entries, newest first, and returns
// the requested 1-based page. page < 1 falls back to 1; size < 1 falls back
// to 10 and is capped at MaxPageSize.
func (s *Store) Paginate(ctx context.Context, page, size int) Page {
	return Paginate(s.Snapshot(ctx), page, size)
}

func Paginate(snap Snapshot, page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultWindow
	}
	size = min(size, MaxPageSize)

	var all []Entry
	for _, entries := range snap {
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].SentAt.After(all[j].SentAt) })

	p := Page{Page: page, Total: len(all), TotalPages: (len(all) + size - 1) / size, Items: []Entry{}}
	// Compare before multiplying so a huge page cannot overflow.
	if page-1 >= p.TotalPages {
		return p
	}
	start := (page - 1) * size
	end := min(start+size, len(all))
	p.Items = all[start:end]
	return p
}
