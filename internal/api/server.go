package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"txguard/internal/alerts"
	"txguard/internal/config"
	"txguard/internal/engine"
	"txguard/internal/health"
	"txguard/internal/logging"
	"txguard/internal/metrics"
	"txguard/internal/pipeline"
	"txguard/internal/storage"
)

// Deps are the components the API reads and controls. Store and Health may be nil.
type Deps struct {
	Config    *config.Manager
	Engine    *engine.Engine
	Processor *pipeline.Processor
	Alerts    *alerts.Store
	Store     storage.Store
	Health    *health.Registry
	Logger    *slog.Logger
	Version   string
}

type Server struct {
	cfg     *config.Manager
	engine  *engine.Engine
	proc    *pipeline.Processor
	alerts  *alerts.Store
	store   storage.Store
	health  *health.Registry
	logger  *slog.Logger
	version string
	started time.Time
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:     d.Config,
		engine:  d.Engine,
		proc:    d.Processor,
		alerts:  d.Alerts,
		store:   d.Store,
		health:  d.Health,
		logger:  d.Logger,
		version: d.Version,
		started: time.Now().UTC(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/audit", s.handleAudit)
		r.Get("/lists", s.handleGetLists)
		r.Put("/lists", s.handlePutLists)
		r.Post("/admin/reset", s.handleReset)
	})
	return r
}

func Start(ctx context.Context, d Deps) *http.Server {
	if d.Config == nil {
		return nil
	}
	logger := d.Logger
	current := d.Config.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           NewServer(d).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

// requestLogger attaches a request-scoped logger to the context and logs each
// request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger
		if logger == nil {
			logger = logging.Discard()
		}
		logger = logger.With("request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))
		logger.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
