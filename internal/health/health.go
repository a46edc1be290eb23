// Package health serves the liveness and readiness checks of the bot process.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const checkTimeout = 3 * time.Second

// Checker reports whether a dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

type Status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type Handler struct {
	checks map[string]Checker
	logger *zap.Logger
}

func NewHandler(checks map[string]Checker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{checks: checks, logger: logger}
}

// Router mounts /healthz and /readyz.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(20, time.Second))

	r.Get("/healthz", h.live)
	r.Get("/readyz", h.ready)
	return r
}

func (h *Handler) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Status{Status: "ok"})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	code := http.StatusOK
	status := Status{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			status.Checks[name] = err.Error()
			status.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Serve runs the health server until ctx is done.
func Serve(ctx context.Context, addr string, h *Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
