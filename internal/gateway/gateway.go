// Package gateway serves the tool registry over HTTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"formbridge/internal/domain"
	"formbridge/internal/tool"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

const (
	maxBodySize     = 1 << 20 // 1MB
	shutdownTimeout = 5 * time.Second
)

// Dispatcher is the subset of tool.Registry the gateway needs.
type Dispatcher interface {
	GetDefinitions() []domain.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error)
}

type Config struct {
	Host   string
	Port   int
	APIKey string // empty disables auth
	// RateLimitPerMinute caps /v1 requests across all clients; 0 = unlimited.
	RateLimitPerMinute int
	Burst              int
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Gateway exposes GET /v1/tools and POST /v1/tools/{name}.
type Gateway struct {
	tools   Dispatcher
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	server  *http.Server
}

func New(tools Dispatcher, cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Gateway{tools: tools, cfg: cfg, logger: cfg.Logger}
	if cfg.RateLimitPerMinute > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), burst)
	}
	return g
}

// Addr is the listen address derived from Host and Port.
func (g *Gateway) Addr() string {
	return net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
}

// Handler builds the router.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(g.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if g.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", g.cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(g.cfg.APIKey))
		r.Use(throttle(g.limiter))

		r.Get("/tools", g.handleListTools)
		r.Post("/tools/{name}", g.handleCallTool)
	})

	return r
}

// Start listens on Addr and serves until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.Addr(), err)
	}
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns only after in-flight requests have completed or
// the shutdown timeout has expired.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g.logger.Info("gateway started", "addr", ln.Addr().String())

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped <- g.Shutdown(shutdownCtx)
	}()

	if err := g.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping")
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	defs := g.tools.GetDefinitions()
	if defs == nil {
		defs = []domain.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": defs,
		"meta": map[string]int{"total": len(defs)},
	})
}

func (g *Gateway) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	args, err := decodeArgs(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.tools.Execute(r.Context(), name, args)
	switch {
	case errors.Is(err, tool.ErrUnknownTool):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		g.logger.Error("tool dispatch failed", "tool", name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeArgs accepts an empty body or a JSON object.
func decodeArgs(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	args, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("request body must be a JSON object")
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
