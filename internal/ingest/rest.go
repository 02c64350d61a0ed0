package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"txguard/internal/config"
	"txguard/internal/normalize"
)

const maxBodyBytes = 2 << 20

type RESTServer struct {
	out    chan<- *normalize.Fields
	logger *slog.Logger
}

func NewRESTHandler(out chan<- *normalize.Fields, logger *slog.Logger) http.Handler {
	s := &RESTServer{out: out, logger: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/transactions", s.handleTransactions)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- *normalize.Fields, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           NewRESTHandler(out, logger),
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

// handleTransactions queues one object or an array of objects. Elements that
// are not objects, and transactions dropped on a full queue, count as failed.
func (s *RESTServer) handleTransactions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}
	v, err := decodeJSON(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be JSON"})
		return
	}

	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	accepted, failed := 0, 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			failed++
			continue
		}
		fields := ParseJSONMap(obj)
		fields.Source = "rest"
		if SendNonBlocking(r.Context(), s.out, fields, s.logger) {
			accepted++
		} else {
			failed++
		}
	}
	if failed > 0 && s.logger != nil {
		s.logger.Warn("rest ingest rejected transactions", "failed", failed, "accepted", accepted)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{
		"accepted": accepted,
		"failed":   failed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
