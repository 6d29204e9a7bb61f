// Package preview serves a generated site locally, rebuilding it when the
// content changes and reloading connected browsers.
package preview

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/metrics"
	"git.home.luguber.info/inful/pagetree/internal/site"
)

// BuildFunc runs one full site build.
type BuildFunc func(ctx context.Context) (*site.BuildReport, error)

// Options tune a Server.
type Options struct {
	// Registry, when set, is exposed at /metrics.
	Registry *prom.Registry
	// Logger receives request logs; nil uses slog.Default().
	Logger *slog.Logger
}

// Server serves outputDir and coordinates rebuilds.
type Server struct {
	outputDir string
	build     BuildFunc
	hub       *Hub
	router    chi.Router
	log       *slog.Logger
	registry  *prom.Registry

	// requests holds at most one pending rebuild; requests arriving while
	// one is pending coalesce into it.
	requests chan struct{}

	mu     sync.RWMutex
	status Status
}

// Status describes the most recent build.
type Status struct {
	BuildID  string    `json:"build_id,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Error    string    `json:"error,omitempty"`
	Finished time.Time `json:"finished,omitempty"`
	// Builds counts builds run by this server.
	Builds int `json:"builds"`
}

// New returns a server for outputDir that rebuilds with build.
func New(outputDir string, build BuildFunc, opts Options) *Server {
	s := &Server{
		outputDir: outputDir,
		build:     build,
		hub:       NewHub(),
		log:       opts.Logger,
		registry:  opts.Registry,
		requests:  make(chan struct{}, 1),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.setupRoutes()
	return s
}

// Hub is the livereload hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler is the HTTP entry point.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/livereload", s.hub.ServeHTTP)
	r.Get("/livereload.js", handleScript)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.HTTPHandler(s.registry))
	}
	r.Handle("/*", injectScript(http.FileServer(http.Dir(s.outputDir))))

	s.router = r
}

// Status returns the last build status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.Status()
	state := "ok"
	if st.Error != "" {
		state = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": state, "last_build": st})
}

func handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(Script))
}

// BuildOnce runs a build now, records its status and tells browsers to
// reload. The build error is returned as well as recorded.
func (s *Server) BuildOnce(ctx context.Context) error {
	report, err := s.build(ctx)

	s.mu.Lock()
	s.status.Builds++
	s.status.Finished = time.Now()
	s.status.Error = ""
	if err != nil {
		s.status.Error = err.Error()
	}
	if report != nil {
		s.status.BuildID = report.BuildID
		s.status.Outcome = string(report.Outcome)
	}
	s.mu.Unlock()

	if report != nil {
		s.hub.Broadcast(report.BuildID)
	}
	return err
}

// RequestRebuild schedules a rebuild without blocking.
func (s *Server) RequestRebuild() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// runBuilds serves rebuild requests one at a time until ctx is done.
func (s *Server) runBuilds(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requests:
			s.log.Info("Change detected; rebuilding site")
			if err := s.BuildOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Rebuild failed", logfields.Error(err))
			}
		}
	}
}

// Serve handles requests on ln and rebuild requests until ctx is done,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE connections are long-lived; no write timeout.
		IdleTimeout: 300 * time.Second,
	}

	go s.runBuilds(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("Preview server listening", logfields.URL("http://"+ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// requestLogger logs incoming requests at debug level.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				logfields.Path(r.URL.Path),
				"status", ww.Status(),
				logfields.Since(start),
			)
		})
	}
}
