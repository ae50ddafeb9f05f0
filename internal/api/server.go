package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"sync"
	"time"

	"tgproxy/internal/channel"
	rtsup "tgproxy/internal/runtime/supervisor"
	"tgproxy/internal/storage"
	logx "tgproxy/pkg/logx"
)

type Config struct {
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool
}

type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	h   *handlers

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

// New builds the server. journal may be nil when storage is disabled.
func New(cfg Config, reg *channel.Registry, journal storage.Store, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "http"))
	return &Server{
		cfg: cfg,
		log: log,
		h:   &handlers{reg: reg, journal: journal, log: log},
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping.html", s.h.ping)
	mux.HandleFunc("GET /{$}", s.h.index)
	mux.HandleFunc("POST /{channel}", s.h.send)
	mux.HandleFunc("GET /{channel}", s.h.stats)
	mux.HandleFunc("GET /{channel}/deliveries", s.h.deliveries)
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return recoverer(s.log, accessLog(s.log, mux))
}

// Start binds the listener synchronously so address errors surface to the
// caller, then serves in the background. Start is idempotent.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(true))

	s.ln, s.srv, s.sup = ln, srv, sup
	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if c.Err() != nil || errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	})
	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Done is closed when the server stops serving for any reason.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return nil
	}
	return s.sup.Context().Done()
}

// Err reports why serving stopped, nil after a clean shutdown.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return nil
	}
	return s.sup.Err()
}

// Stop shuts down gracefully within ctx, then force-closes.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	sup.Cancel()
	_ = sup.Wait(context.Background())

	s.mu.Lock()
	s.srv = nil
	s.sup = nil
	s.mu.Unlock()

	s.log.Info("http server stopped")
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
