package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/approval"
	"remindbot/internal/domain"
	"remindbot/internal/eventbus"
	"remindbot/internal/history"
	"remindbot/internal/registry"
	"remindbot/internal/scheduler"
	"remindbot/internal/session"
	"remindbot/internal/settings"
	"remindbot/internal/storage"
	"remindbot/internal/textgen"
	logx "remindbot/pkg/logx"
)

type fakeSession struct {
	mu          sync.Mutex
	active      atomic.Bool
	syncs       int
	disconnects int
}

func (f *fakeSession) Connect(context.Context) error { return nil }
func (f *fakeSession) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSession) Info() session.Info {
	if f.active.Load() {
		return session.Info{State: session.StateReady, Active: true}
	}
	return session.Info{State: session.StateAwaitingPairing, QR: "data:image/png;base64,AAAA"}
}

func (f *fakeSession) Active() bool { return f.active.Load() }

func (f *fakeSession) counts() (syncs, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs, f.disconnects
}

func (f *fakeSession) Sync(context.Context) ([]domain.Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	if !f.active.Load() {
		return nil, session.ErrNotActive
	}
	return nil, nil
}

type fakeScheduler struct {
	mu      sync.Mutex
	running bool
	starts  int
}

func (f *fakeScheduler) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
	return nil
}

func (f *fakeScheduler) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.running
	f.running = false
	return was
}

func (f *fakeScheduler) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeScheduler) Snapshot() scheduler.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Snapshot{Running: f.running}
}

type fakeGenerator struct {
	key bool
	err error
}

func (g fakeGenerator) Generate(_ context.Context, name, _ string, _ settings.Settings) (string, error) {
	return "Bom dia, " + name + "!", g.err
}

func (g fakeGenerator) HasKey() bool { return g.key }

type harness struct {
	srv      *httptest.Server
	mem      *storage.Memory
	sess     *fakeSession
	sched    *fakeScheduler
	reg      *registry.Registry
	hist     *history.Store
	cache    *approval.Cache
	settings *settings.Store
	bus      eventbus.Bus
}

func newHarness(t *testing.T, gen fakeGenerator) *harness {
	t.Helper()
	h := &harness{
		mem:   storage.NewMemory(),
		sess:  &fakeSession{},
		sched: &fakeScheduler{},
		cache: approval.New(),
		bus:   eventbus.New(),
	}
	h.reg = registry.New(h.mem, logx.Nop())
	h.hist = history.NewStore(h.mem, logx.Nop())
	h.settings = settings.NewStore(h.mem, logx.Nop())
	require.NoError(t, h.settings.Ensure(context.Background()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "remindbot_test_total", Help: "test"}))

	svc := New(Config{MaxUploadBytes: 1 << 20}, Deps{
		Session:   h.sess,
		Registry:  h.reg,
		History:   h.hist,
		Approvals: h.cache,
		Generator: gen,
		Documents: textgen.NewDocuments(filepath.Join(t.TempDir(), "PDFs"), 0),
		Settings:  h.settings,
		Scheduler: h.sched,
		Bus:       h.bus,
		Store:     h.mem,
		Gatherer:  reg,
	})
	h.srv = httptest.NewServer(svc.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestGroupSyncAndUnsync(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})
	ctx := context.Background()

	resp, _ := h.do(t, http.MethodPost, "/api/groups/sync", map[string]string{"id": "a@g.us"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/api/groups/sync", map[string]string{"id": "a@g.us", "name": "Turma A"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Len(t, h.reg.Synchronized(ctx), 1)
	syncs, _ := h.sess.counts()
	assert.Equal(t, 1, syncs)
	assert.Equal(t, 1, h.sched.Starts(), "enabled by default, so sync starts the scheduler")

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/groups/synchronized", nil)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var list []domain.Destination
	require.NoError(t, json.NewDecoder(r.Body).Decode(&list))
	r.Body.Close()
	assert.Equal(t, []domain.Destination{{ID: "a@g.us", Name: "Turma A"}}, list)

	resp, _ = h.do(t, http.MethodPost, "/api/groups/unsync", map[string]string{"id": "a@g.us", "name": "Turma A"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, h.reg.Synchronized(ctx))
	assert.Len(t, h.reg.NotSynchronized(ctx), 1)

	var actions []string
	for _, e := range h.mem.AuditEntries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"group.sync", "group.unsync"}, actions)
}

func TestPreviewThenDiscard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})

	resp, body := h.do(t, http.MethodPost, "/api/messages/preview", map[string]string{"id": "a@g.us", "name": "Turma A"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bom dia, Turma A!", body["mensagem"])
	p, ok := h.cache.Peek("a@g.us")
	require.True(t, ok)
	assert.Equal(t, "Bom dia, Turma A!", p.Message)

	resp, _ = h.do(t, http.MethodPost, "/api/messages/discard", map[string]string{"id": "a@g.us"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/api/messages/discard", map[string]string{"id": "a@g.us"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/api/messages/discard", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreviewGeneratorFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true, err: errors.New("boom")})
	resp, _ := h.do(t, http.MethodPost, "/api/messages/preview", map[string]string{"id": "a@g.us", "name": "Turma A"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, h.cache.Len())
}

func TestMessagesPagination(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})
	ctx := context.Background()
	for _, m := range []string{"m1", "m2", "m3"} {
		require.NoError(t, h.hist.Append(ctx, "a@g.us", "Turma A", m))
	}

	resp, body := h.do(t, http.MethodGet, "/api/messages?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["totalMensagens"])
	assert.EqualValues(t, 2, body["totalPaginas"])
	assert.EqualValues(t, 1, body["paginaAtual"])
	assert.Len(t, body["mensagens"], 2)

	resp, body = h.do(t, http.MethodGet, "/api/messages?page=4611686018427387904&limit=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["mensagens"])
	assert.EqualValues(t, 1, body["totalPaginas"])

	resp, body = h.do(t, http.MethodGet, "/api/messages/all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["a@g.us"], 3)
}

func TestSchedulerStartRequiresGroups(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})
	ctx := context.Background()
	_, err := h.settings.SetEnabled(ctx, false)
	require.NoError(t, err)

	resp, _ := h.do(t, http.MethodPost, "/api/scheduler/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, h.sched.Starts())

	require.NoError(t, h.reg.Promote(ctx, domain.Destination{ID: "a@g.us", Name: "Turma A"}))
	resp, _ = h.do(t, http.MethodPost, "/api/scheduler/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, h.sched.Snapshot().Running)
	assert.True(t, h.settings.Get(ctx).Enabled)

	resp, _ = h.do(t, http.MethodPost, "/api/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, h.sched.Snapshot().Running)
	assert.False(t, h.settings.Get(ctx).Enabled)
}

func TestConfigUpdateValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})
	ctx := context.Background()

	resp, _ := h.do(t, http.MethodPost, "/api/config", map[string]any{"intervaloMinutos": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/api/config", map[string]any{"intervaloMinutos": 5, "delayEnvioMs": 500})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, settings.DefaultIntervalMinutes, h.settings.Get(ctx).IntervalMinutes, "rejected update leaves settings untouched")

	resp, body := h.do(t, http.MethodPost, "/api/config", map[string]any{"intervaloMinutos": "15", "delayEnvioMs": 2000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	cur := h.settings.Get(ctx)
	assert.Equal(t, 15, cur.IntervalMinutes)
	assert.Equal(t, 2000, cur.SendDelayMs)
	assert.Equal(t, 1, h.sched.Starts())

	resp, _ = h.do(t, http.MethodPost, "/api/config/prompts", map[string]string{"promptComPdf": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/api/config/prompts", map[string]string{"promptComPdf": "com {{conteudoPDF}}", "promptSemPdf": "sem"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sem", h.settings.Get(ctx).PromptWithoutDocument)

	resp, body = h.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 15, body["intervaloMinutos"])
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: false})
	resp, body := h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "error", body["status"])

	h = newHarness(t, fakeGenerator{key: true})
	resp, body = h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "warning", body["status"], "inactive session only warns")

	h.sess.active.Store(true)
	resp, body = h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	// A settings document that was never written is a critical failure.
	h = newHarness(t, fakeGenerator{key: true})
	h.sess.active.Store(true)
	h.mem.Delete(storage.KeySettings)
	resp, body = h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
}

func TestDisconnectRequiresActiveSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})
	resp, _ := h.do(t, http.MethodPost, "/api/disconnect", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.sess.active.Store(true)
	resp, _ = h.do(t, http.MethodPost, "/api/disconnect", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, disconnects := h.sess.counts()
	assert.Equal(t, 1, disconnects)

	resp, body := h.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "conectado", body["status"])
}

func TestUploadDocument(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})

	upload := func(id, content string) int {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("pdfFile", "apostila.pdf")
		require.NoError(t, err)
		_, _ = fw.Write([]byte(content))
		require.NoError(t, mw.Close())
		resp, err := http.Post(h.srv.URL+"/api/documents/"+id, mw.FormDataContentType(), &buf)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, upload("a@g.us", "%PDF-1.4\n%%EOF"))
	assert.Equal(t, http.StatusBadRequest, upload("a@g.us", "not a pdf"))
	assert.Equal(t, http.StatusBadRequest, upload(".hidden", "%PDF-1.4"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})
	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "remindbot_test_total")
}

func TestPprofRoutesAreOptIn(t *testing.T) {
	t.Parallel()
	off := New(Config{}, Deps{})
	rec := httptest.NewRecorder()
	off.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	on := New(Config{Pprof: true}, Deps{})
	rec = httptest.NewRecorder()
	on.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceStartStop(t *testing.T) {
	t.Parallel()
	svc := New(Config{Addr: "127.0.0.1:0"}, Deps{})
	assert.True(t, isLoopbackAddr(svc.cfg.Addr))
	assert.False(t, isLoopbackAddr("0.0.0.0:3000"))

	svc.Start(context.Background())
	svc.Start(context.Background())
	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("listener never bound")
	}
	addr := svc.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/debug/pprof/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Stop(ctx)
	assert.Empty(t, svc.Addr())
	_, err = http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestEventStream(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeGenerator{key: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		return ""
	}

	assert.Equal(t, eventbus.TypeStatus, next())
	assert.Equal(t, eventbus.TypeQR, next())

	h.bus.Publish(eventbus.Event{Type: eventbus.TypeLog, Data: eventbus.LogData{Level: "info", Line: "hello"}})
	assert.Equal(t, eventbus.TypeLog, next())
}
