package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
	// Pprof mounts the runtime profiler under /debug/pprof/.
	Pprof bool
}

const (
	defaultAddr      = "127.0.0.1:3000"
	defaultMaxUpload = 20 << 20
)

// Service is the dashboard: the JSON control API, the event stream and the
// metrics endpoint on one listener.
type Service struct {
	log     logx.Logger
	cfg     Config
	d       Deps
	handler http.Handler

	readyOnce sync.Once
	ready     chan struct{}

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaultAddr
	}
	s := &Service{
		cfg:   cfg,
		d:     d,
		log:   d.Log.With(logx.String("comp", "dashboard")),
		ready: make(chan struct{}),
	}
	s.handler = s.routes()
	return s
}

func (s *Service) Handler() http.Handler { return s.handler }

// Addr is the bound address, or "" while no listener is up.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Ready is closed once the first listener is bound.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Start serves in the background until ctx ends or Stop is called. A failed
// listener is retried with backoff. Calling Start twice has no effect.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	if !isLoopbackAddr(s.cfg.Addr) {
		s.log.Warn("dashboard bound to a non-loopback address; it has no authentication", logx.String("addr", s.cfg.Addr))
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("http.serve", s.serve, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

// Stop drains in-flight requests until ctx ends, then closes whatever is
// left.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	_ = sup.Wait(ctx)
	s.log.Info("dashboard stopped")
}

func (s *Service) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dashboard: listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	defer func() {
		s.mu.Lock()
		if s.srv == srv {
			s.ln, s.srv = nil, nil
		}
		s.mu.Unlock()
	}()

	stopServe := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stopServe()

	addr := ln.Addr().String()
	s.log.Info("dashboard started", logx.String("addr", addr), logx.String("url", "http://"+addr+"/"))

	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("dashboard server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
