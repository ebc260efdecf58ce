// Package server exposes bulletin rendering over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/pipeline"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Renderer turns a script into an encoded bulletin.
type Renderer interface {
	Render(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

type options struct {
	maxScriptBytes int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxScriptBytes: 64 << 10,
		workers:        1,
		requestTimeout: 5 * time.Minute,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxScriptBytes caps the script size accepted by POST /render.
func WithMaxScriptBytes(n int) Option {
	return func(o *options) { o.maxScriptBytes = n }
}

// WithWorkers sets how many renders may run at once.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type handler struct {
	renderer Renderer
	opts     options
	sem      chan struct{}
	log      *slog.Logger
}

// NewHandler returns an http.Handler serving GET /health and POST /render.
func NewHandler(r Renderer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{renderer: r, opts: opts, log: opts.logger}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/render", h.handleRender)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type renderRequest struct {
	Script string `json:"script"`
}

func (h *handler) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		writeError(w, http.StatusBadRequest, "script field is required")
		return
	}
	if len(req.Script) > h.opts.maxScriptBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("script exceeds maximum size of %d bytes", h.opts.maxScriptBytes))
		return
	}

	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.renderer.Render(ctx, pipeline.Input{Script: req.Script})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		status := statusFor(ctx, err)
		attrs := []any{
			slog.Int("script_len", len(req.Script)),
			slog.Int64("duration_ms", elapsed),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		}
		if status >= http.StatusInternalServerError {
			h.log.ErrorContext(r.Context(), "render failed", attrs...)
		} else {
			h.log.WarnContext(r.Context(), "render rejected", attrs...)
		}
		writeFault(w, status, err)
		return
	}

	h.log.InfoContext(r.Context(), "render complete",
		slog.Int("script_len", len(req.Script)),
		slog.Int64("duration_ms", elapsed),
		slog.String("container", res.Container),
		slog.Int("bytes", len(res.Audio)),
	)

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-Bulletin-Duration-Ms", strconv.FormatInt(res.Duration.Milliseconds(), 10))
	w.Header().Set("X-Bulletin-Speech-Segments", strconv.Itoa(res.SpeechSegments()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

// statusFor maps a render failure to an HTTP status.
func statusFor(ctx context.Context, err error) int {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, pipeline.ErrNoInput) {
		return http.StatusBadRequest
	}

	switch fault.KindOf(err) {
	case fault.KindMalformedScript:
		return http.StatusUnprocessableEntity
	case fault.KindSpeechSynthesis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFault(w http.ResponseWriter, status int, err error) {
	body := map[string]any{"error": err.Error()}

	var fe *fault.Error
	if errors.As(err, &fe) {
		body["kind"] = fe.Kind.String()
		if fe.Segment != fault.NoSegment {
			body["segment"] = fe.Segment
		}
		if fe.Asset != "" {
			body["asset"] = fe.Asset
		}
		if fe.Rule != "" {
			body["rule"] = fe.Rule
		}
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.ServerConfig
	renderer        Renderer
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg config.ServerConfig, r Renderer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	shutdown := time.Duration(cfg.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	return &Server{cfg: cfg, renderer: r, logger: logger, shutdownTimeout: shutdown}
}

// Handler builds the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	opts := []Option{WithLogger(s.logger)}
	if s.cfg.Workers > 0 {
		opts = append(opts, WithWorkers(s.cfg.Workers))
	}
	if s.cfg.MaxScriptBytes > 0 {
		opts = append(opts, WithMaxScriptBytes(s.cfg.MaxScriptBytes))
	}
	if s.cfg.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(s.cfg.RequestTimeout)*time.Second))
	}

	return NewHandler(s.renderer, opts...)
}

// Start serves until ctx is cancelled, then drains in-flight renders.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info("http server listening", slog.String("addr", s.cfg.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks GET /health on addr.
func ProbeHTTP(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
