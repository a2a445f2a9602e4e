// Package api provides the HTTP server for the MSI-A intake service.
//
// It receives helpdesk webhooks and runs them through the intake gate. It also serves the
// field-collection engine over the element catalog and the operator surface (escalation
// review, kill switch settings, conversation counters, Prometheus metrics, health).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pepeccz/msi-a-sub001/internal/catalog"
	"github.com/pepeccz/msi-a-sub001/internal/intake"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
	"github.com/pepeccz/msi-a-sub001/internal/util"
)

// Server timeouts
const (
	DefaultAddr              = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Repo is the storage the operator endpoints read and write.
type Repo interface {
	store.EscalationRepo
	store.CounterRepo
}

// SettingsStore reads and writes operator settings. Writes must invalidate any cache.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Inbound handles one normalized customer message.
type Inbound interface {
	HandleInbound(ctx context.Context, msg models.InboundMessage) (intake.Result, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Service   Inbound
	Escalator intake.EscalationEnsurer
	Repo      Repo
	Settings  SettingsStore
	// Catalog is optional; the /catalog endpoints answer 503 without it.
	Catalog *catalog.Catalog
}

// Opts holds configuration options for the Server.
type Opts struct {
	Addr         string
	WebhookToken string
	Gatherer     prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithWebhookToken requires webhook deliveries to carry ?token=<value>.
func WithWebhookToken(token string) Option {
	return func(o *Opts) {
		o.WebhookToken = token
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *Opts) {
		o.Gatherer = g
	}
}

// Server is the intake HTTP server.
type Server struct {
	deps Deps
	opts Opts
	srv  *http.Server
}

// NewServer builds a Server. Missing options fall back to defaults.
func NewServer(deps Deps, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: deps, opts: cfg}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
	}
	return s
}

// Routes returns the handler with every endpoint and the request middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/chatwoot", s.webhookHandler)
	mux.HandleFunc("GET /escalations", s.listEscalationsHandler)
	mux.HandleFunc("GET /escalations/{id}", s.getEscalationHandler)
	mux.HandleFunc("POST /escalations/{id}/status", s.updateEscalationStatusHandler)
	mux.HandleFunc("POST /conversations/{id}/escalations", s.escalateConversationHandler)
	mux.HandleFunc("GET /conversations/{id}/history", s.conversationHistoryHandler)
	mux.HandleFunc("GET /settings/{key}", s.getSettingHandler)
	mux.HandleFunc("PUT /settings/{key}", s.putSettingHandler)
	mux.HandleFunc("GET /catalog", s.listElementsHandler)
	mux.HandleFunc("POST /catalog/{code}/plan", s.planHandler)
	mux.HandleFunc("POST /catalog/{code}/answers", s.answerHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.healthHandler)
	return withRequestLogging(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	return nil
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLogging assigns a request id and logs each request at Debug.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = util.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Debug("Server: request handled",
			"requestID", reqID, "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
