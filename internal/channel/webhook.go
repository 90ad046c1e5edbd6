package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"relaybot/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

const maxCallbackBody = 1 << 20 // 1MB

// EventHandler receives the verified events of one LINE callback.
type EventHandler interface {
	HandleEvents(ctx context.Context, events []webhook.EventInterface)
}

// CallbackServerConfig configures the LINE callback HTTP server.
type CallbackServerConfig struct {
	Port        int
	Path        string // callback URL path (default: /callback)
	Secret      string // LINE channel secret for signature verification
	MetricsPath string // empty disables the metrics endpoint
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// CallbackServer accepts LINE webhook callbacks and serves health and
// metrics endpoints.
type CallbackServer struct {
	port        int
	path        string
	secret      string
	metricsPath string
	metrics     *metrics.Recorder
	logger      *slog.Logger
	server      *http.Server
}

// NewCallbackServer creates a new callback server.
func NewCallbackServer(cfg CallbackServerConfig) *CallbackServer {
	if cfg.Path == "" {
		cfg.Path = "/callback"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &CallbackServer{
		port:        cfg.Port,
		path:        cfg.Path,
		secret:      cfg.Secret,
		metricsPath: cfg.MetricsPath,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Router builds the HTTP routes, dispatching verified callbacks to h.
func (s *CallbackServer) Router(h EventHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Post(s.path, func(rw http.ResponseWriter, req *http.Request) {
		s.handleCallback(rw, req, h)
	})
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	if s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}
	r.MethodNotAllowed(func(rw http.ResponseWriter, _ *http.Request) {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *CallbackServer) Start(ctx context.Context, h EventHandler) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("line callback server starting", "port", s.port, "path", s.path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("line callback server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("line callback server: %w", err)
	}
}

func (s *CallbackServer) handleCallback(rw http.ResponseWriter, r *http.Request, h EventHandler) {
	r.Body = http.MaxBytesReader(rw, r.Body, maxCallbackBody)
	defer r.Body.Close()

	cb, err := webhook.ParseRequest(s.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			s.logger.Warn("line callback signature mismatch", "remote", r.RemoteAddr)
			http.Error(rw, "Invalid signature", http.StatusBadRequest)
			return
		}
		s.logger.Warn("line callback rejected", "err", err)
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}

	s.logger.Debug("line callback received", "events", len(cb.Events))
	h.HandleEvents(r.Context(), cb.Events)
	rw.WriteHeader(http.StatusOK)
}
