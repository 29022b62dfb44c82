package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Document keys. File names and sqlite keys follow the persisted layout
// of earlier deployments so existing data stays readable.
const (
	KeySynchronized    = "grupos_sincronizados"
	KeyNotSynchronized = "grupos_nao_sincronizados"
	KeyHistory         = "mensagens_enviadas"
	KeySettings        = "config"
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): Path is a directory
//   - "sqlite": Path is the database file, or a directory holding remindbot.db
//   - "memory": Path is ignored
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action taken through the dashboard.
type AuditEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	TookMS int64     `json:"took_ms,omitempty"`
	Meta   string    `json:"meta,omitempty"`
}
