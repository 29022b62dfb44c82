package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

type group struct {
	ID   string `json:"id"`
	Name string `json:"nome"`
}

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(t.TempDir(), "data")},
		{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "state.db")},
		{Driver: "memory"},
	} {
		st, err := Open(cfg, logx.Nop())
		require.NoError(t, err, cfg.Driver)
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestSaveSkipsUnchangedDocuments(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			doc := []group{{ID: "1@g.us", Name: "Turma A"}}

			changed, err := SaveJSON(ctx, st, KeySynchronized, doc)
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = SaveJSON(ctx, st, KeySynchronized, doc)
			require.NoError(t, err)
			assert.False(t, changed, "identical body must not be rewritten")

			doc = append(doc, group{ID: "2@g.us", Name: "Turma B"})
			changed, err = SaveJSON(ctx, st, KeySynchronized, doc)
			require.NoError(t, err)
			assert.True(t, changed)

			var got []group
			ok, err := LoadJSON(ctx, st, KeySynchronized, &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, doc, got)
		})
	}
}

func TestLoadMissingDocument(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			var v map[string]any
			ok, err := LoadJSON(ctx, st, KeyHistory, &v)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.NoError(t, st.Ping(ctx))
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = SaveJSON(ctx, st, KeySettings, map[string]any{"habilitado": true})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"habilitado\": true\n}", string(b))

	_, err = st.Save(ctx, "../escape", []byte("{}"))
	assert.Error(t, err)
}

func TestFileStoreDoesNotTouchUnchangedFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = SaveJSON(ctx, st, KeyHistory, map[string]any{})
	require.NoError(t, err)
	path := filepath.Join(dir, KeyHistory+".json")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err = SaveJSON(ctx, st, KeyHistory, map[string]any{})
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(old))
}

func TestAuditAppends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)

	Audit(ctx, st, logx.Nop(), AuditEntry{Action: "scheduler.start", OK: true})
	Audit(ctx, st, logx.Nop(), AuditEntry{Action: "group.sync", Target: "1@g.us", OK: true})
	require.NoError(t, st.Close())

	f, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].At.IsZero())
	assert.Equal(t, "1@g.us", entries[1].Target)

	mem := NewMemory()
	Audit(ctx, mem, logx.Nop(), AuditEntry{Action: "x"})
	assert.Len(t, mem.AuditEntries(), 1)
}

func TestSQLitePathResolution(t *testing.T) {
	assert.Equal(t, "state.db", sqlitePath("state.db"))
	assert.Equal(t, filepath.Join("data", "remindbot.db"), sqlitePath("data"))
}
