package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/store"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Key, when set, must be passed as the "key" query parameter.
	Key string
	// Timeout bounds each request. Zero means 60 seconds.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRouter builds the emulator's HTTP handler.
func NewRouter(st *store.Store, cfg RouterConfig) http.Handler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	replica := NewReplicaHandler(st, cfg.Logger)

	r := chi.NewRouter()

	// Middleware.
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	// Script endpoints.
	r.Group(func(r chi.Router) {
		r.Use(KeyMiddleware(cfg.Key))
		r.Get("/", replica.Get)
		r.Post("/", replica.Post)
	})

	// Health check endpoint.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
