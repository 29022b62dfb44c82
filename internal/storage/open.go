package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by the registry, history and settings.
type Store interface {
	// Load returns the raw document stored under key; ok is false when absent.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Save replaces the document. It reports changed=false and writes nothing
	// when the stored body is byte-identical.
	Save(ctx context.Context, key string, data []byte) (changed bool, err error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	// Ping reports whether the backing medium is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// LoadJSON decodes the document under key into v. ok is false when absent.
func LoadJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	b, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v as indented JSON and saves it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	b, err := Marshal(v)
	if err != nil {
		return false, fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.Save(ctx, key, b)
}

// Marshal renders v the way documents are stored (2-space indent, no HTML escaping).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Audit fills ID/At and appends e. Failures are logged, never returned.
func Audit(ctx context.Context, s Store, log logx.Logger, e AuditEntry) {
	if s == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := s.AppendAudit(ctx, e); err != nil {
		log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}
