package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	hpprof "net/http/pprof"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/approval"
	"remindbot/internal/domain"
	"remindbot/internal/session"
	"remindbot/internal/settings"
	"remindbot/internal/storage"
	"remindbot/internal/textgen"
	logx "remindbot/pkg/logx"
)

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/groups/synchronized", s.handleSynchronized)
	mux.HandleFunc("GET /api/groups/unsynchronized", s.handleNotSynchronized)
	mux.HandleFunc("POST /api/groups/sync", s.handlePromote)
	mux.HandleFunc("POST /api/groups/unsync", s.handleDemote)

	mux.HandleFunc("POST /api/messages/preview", s.handlePreview)
	mux.HandleFunc("POST /api/messages/discard", s.handleDiscard)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("GET /api/messages/all", s.handleAllMessages)

	mux.HandleFunc("POST /api/scheduler/start", s.handleSchedulerStart)
	mux.HandleFunc("POST /api/scheduler/stop", s.handleSchedulerStop)

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleUpdateConfig)
	mux.HandleFunc("POST /api/config/prompts", s.handleUpdatePrompts)

	mux.HandleFunc("POST /api/documents/{groupId}", s.handleUpload)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	gatherer := s.d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if s.cfg.Pprof {
		mux.HandleFunc("GET /debug/pprof/", hpprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("GET /debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", hpprof.Trace)
	}

	return s.recoverPanics(s.logRequests(mux))
}

// ---- middleware ----

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		d := time.Since(start)

		fields := []logx.Field{
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", rec.status),
			logx.Duration("dur", d),
		}
		switch {
		case rec.status >= 500:
			s.log.Warn("request failed", fields...)
		case d >= 750*time.Millisecond && r.URL.Path != "/api/events":
			s.log.Info("request ok", fields...)
		default:
			s.log.Debug("request ok", fields...)
		}
	})
}

func (s *Service) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Error("panic recovered",
					logx.String("path", r.URL.Path),
					logx.Any("panic", v),
					logx.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ---- helpers ----

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	set bool
	n   int
	bad bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" || s == "" {
		return nil
	}
	f.set = true
	if fv, err := strconv.ParseFloat(s, 64); err == nil {
		f.n = int(fv)
		return nil
	}
	f.bad = true
	return nil
}

func (s *Service) audit(ctx context.Context, action, target string, start time.Time, err error) {
	if s.d.Store == nil {
		return
	}
	e := storage.AuditEntry{Action: action, Target: target, OK: err == nil, TookMS: time.Since(start).Milliseconds()}
	if err != nil {
		e.Error = err.Error()
	}
	storage.Audit(context.WithoutCancel(ctx), s.d.Store, s.log, e)
}

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ---- session ----

func (s *Service) handleConnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := s.d.Session.Connect(r.Context())
	s.audit(r.Context(), "session.connect", "", start, err)
	if err != nil {
		s.log.Error("connect failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to start client")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Message: "connect requested; waiting for pairing code"})
}

func (s *Service) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !s.d.Session.Active() {
		s.log.Warn("disconnect requested while session inactive")
		writeError(w, http.StatusBadRequest, "client is not connected")
		return
	}
	start := time.Now()
	err := s.d.Session.Disconnect(r.Context())
	s.audit(r.Context(), "session.disconnect", "", start, err)
	if err != nil {
		s.log.Error("disconnect failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("bot disconnected by operator")
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type statusResponse struct {
	Status    string `json:"status"`
	session.Info
	Scheduler any `json:"scheduler,omitempty"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.d.Session.Info()
	resp := statusResponse{Status: "desconectado", Info: info}
	if info.Active {
		resp.Status = "conectado"
	}
	if s.d.Scheduler != nil {
		resp.Scheduler = s.d.Scheduler.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- groups ----

func (s *Service) handleSynchronized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Registry.Synchronized(r.Context()))
}

func (s *Service) handleNotSynchronized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Registry.NotSynchronized(r.Context()))
}

func (s *Service) handlePromote(w http.ResponseWriter, r *http.Request) {
	var d domain.Destination
	if err := decodeBody(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := d.Valid(); err != nil {
		writeError(w, http.StatusBadRequest, "group id and name are required")
		return
	}
	ctx := r.Context()
	start := time.Now()
	err := s.d.Registry.Promote(ctx, d)
	s.audit(ctx, "group.sync", d.ID, start, err)
	if err != nil {
		s.log.Error("group sync failed", logx.String("group", d.Name), logx.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.log.Info("group synchronized", logx.String("group", d.Name), logx.String("id", d.ID))

	if _, err := s.d.Session.Sync(ctx); err != nil && !errors.Is(err, session.ErrNotActive) {
		s.log.Warn("reconcile after sync failed", logx.Err(err))
	}
	if s.d.Settings.Get(ctx).Enabled {
		if err := s.d.Scheduler.Start(ctx); err != nil {
			s.log.Error("scheduler start failed", logx.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Service) handleDemote(w http.ResponseWriter, r *http.Request) {
	var d domain.Destination
	if err := decodeBody(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := d.Valid(); err != nil {
		writeError(w, http.StatusBadRequest, "group id and name are required")
		return
	}
	ctx := r.Context()
	start := time.Now()
	err := s.d.Registry.Demote(ctx, d)
	s.audit(ctx, "group.unsync", d.ID, start, err)
	if err != nil {
		s.log.Error("group unsync failed", logx.String("group", d.Name), logx.Err(err))
		writeError(w, statusFor(err), "failed to unsynchronize group")
		return
	}
	s.log.Info("group unsynchronized",
		logx.String("group", d.Name),
		logx.Int("remaining", len(s.d.Registry.Synchronized(ctx))),
	)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ---- messages ----

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	var d domain.Destination
	if err := decodeBody(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := d.Valid(); err != nil {
		writeError(w, http.StatusBadRequest, "group id and name are required")
		return
	}
	ctx := r.Context()
	s.log.Info("generating preview message", logx.String("group", d.Name))
	msg, err := s.d.Generator.Generate(ctx, d.Name, d.ID, s.d.Settings.Get(ctx))
	if err != nil {
		s.log.Error("preview generation failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to generate message")
		return
	}
	s.d.Approvals.Set(d.ID, msg)
	s.log.Info("preview message approved and cached", logx.String("group", d.Name))
	writeJSON(w, http.StatusOK, map[string]string{"mensagem": msg})
}

func (s *Service) handleDiscard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		writeError(w, http.StatusBadRequest, "group id is required")
		return
	}
	if err := s.d.Approvals.Discard(body.ID); err != nil {
		s.log.Warn("discard requested but nothing cached", logx.String("id", body.ID))
		writeError(w, statusFor(err), "no cached message for this group")
		return
	}
	s.log.Info("cached message discarded", logx.String("id", body.ID))
	writeJSON(w, http.StatusOK, okResponse{OK: true, Message: "message discarded"})
}

func (s *Service) handleMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	writeJSON(w, http.StatusOK, s.d.History.Paginate(r.Context(), page, limit))
}

func (s *Service) handleAllMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.History.Snapshot(r.Context()))
}

// ---- scheduler ----

func (s *Service) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if len(s.d.Registry.Synchronized(ctx)) == 0 {
		s.log.Warn("scheduler start refused: no synchronized groups")
		writeError(w, http.StatusBadRequest, "no synchronized groups; cannot start scheduling")
		return
	}
	start := time.Now()
	_, err := s.d.Settings.SetEnabled(ctx, true)
	if err == nil {
		err = s.d.Scheduler.Start(ctx)
	}
	s.audit(ctx, "scheduler.start", "", start, err)
	if err != nil {
		s.log.Error("scheduler start failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to start scheduling")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Service) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	_, err := s.d.Settings.SetEnabled(ctx, false)
	s.d.Scheduler.Stop()
	s.audit(ctx, "scheduler.stop", "", start, err)
	if err != nil {
		s.log.Error("persist disabled flag failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ---- config ----

func (s *Service) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Settings.Get(r.Context()))
}

func (s *Service) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IntervalMinutes flexInt `json:"intervaloMinutos"`
		SendDelayMs     flexInt `json:"delayEnvioMs"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.IntervalMinutes.set || body.IntervalMinutes.bad || body.IntervalMinutes.n < 1 {
		writeError(w, http.StatusBadRequest, "invalid interval; must be >= 1 minute")
		return
	}
	u := settings.Update{IntervalMinutes: &body.IntervalMinutes.n}
	if body.SendDelayMs.set {
		if body.SendDelayMs.bad || body.SendDelayMs.n < settings.MinSendDelayMs {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid delay; must be >= %d ms", settings.MinSendDelayMs))
			return
		}
		u.SendDelayMs = &body.SendDelayMs.n
	}

	ctx := r.Context()
	start := time.Now()
	cfg, err := s.d.Settings.Update(ctx, u)
	s.audit(ctx, "config.update", "", start, err)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if cfg.Enabled {
		if err := s.d.Scheduler.Start(ctx); err != nil {
			s.log.Error("scheduler restart failed", logx.Err(err))
		}
	}
	s.log.Info("settings updated",
		logx.Int("interval_minutes", cfg.IntervalMinutes),
		logx.Int("send_delay_ms", cfg.SendDelayMs),
	)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": cfg})
}

func (s *Service) handleUpdatePrompts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WithDocument    string `json:"promptComPdf"`
		WithoutDocument string `json:"promptSemPdf"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.WithDocument) == "" || strings.TrimSpace(body.WithoutDocument) == "" {
		writeError(w, http.StatusBadRequest, "both prompts are required")
		return
	}
	ctx := r.Context()
	start := time.Now()
	_, err := s.d.Settings.SetPrompts(ctx, body.WithDocument, body.WithoutDocument)
	s.audit(ctx, "config.prompts", "", start, err)
	if err != nil {
		writeError(w, statusFor(err), "failed to save prompts")
		return
	}
	s.log.Info("generator prompts updated")
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ---- documents ----

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("groupId"))
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, _, err := r.FormFile("pdfFile")
	if id == "" || err != nil {
		writeError(w, http.StatusBadRequest, "group id and PDF file are required")
		return
	}
	defer file.Close()

	ctx := r.Context()
	start := time.Now()
	n, err := s.d.Documents.Save(id, file)
	s.audit(ctx, "document.upload", id, start, err)
	if err != nil {
		if errors.Is(err, textgen.ErrNotPDF) || domain.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("document save failed", logx.String("id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to save PDF")
		return
	}
	s.log.Info("reference document updated", logx.String("id", id), logx.Int64("bytes", n))
	writeJSON(w, http.StatusOK, okResponse{OK: true, Message: "PDF uploaded"})
}
