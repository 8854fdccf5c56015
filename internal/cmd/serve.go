package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/authgate"
	"github.com/mcpcore/mcpcore/internal/config"
	"github.com/mcpcore/mcpcore/internal/metrics"
	"github.com/mcpcore/mcpcore/internal/mcpserver"
	"github.com/mcpcore/mcpcore/internal/otelx"
	"github.com/mcpcore/mcpcore/internal/session"
	"github.com/mcpcore/mcpcore/internal/transport/sse"
	"github.com/mcpcore/mcpcore/internal/transport/stdio"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP protocol core",
	Long: `serve runs the protocol core with whichever transport the config
selects: "stdio" serves exactly one session over the process's stdin/stdout,
"sse" serves the two-leg HTTP+SSE transport and accepts many concurrent
sessions.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	return runCore(cfg)
}

// runCore builds and serves the protocol core from cfg. Shared by "serve"
// and "start" (which additionally manages a PID file around this call).
func runCore(cfg *config.Config) error {
	// Logging goes to stderr unconditionally: stdout is reserved for the
	// stdio transport's frame stream.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	providers, shutdownOtel, err := otelx.Setup(ctx, otelx.WithTraceWriter(os.Stderr), otelx.WithMetricWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("serve: otel setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			logger.Warn("otel shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	registry := session.NewRegistry()
	srv := mcpserver.New(
		session.PeerInfo{Name: "mcpcore", Version: Version},
		"",
		registry,
	)
	srv.SetTracer(providers.Tracer)
	srv.SetToolMetrics(m)

	router := session.NewRouter(srv)
	srv.Wire(router)

	pollCtx, pollStop := context.WithCancel(ctx)
	defer pollStop()
	go m.PollSessions(pollCtx, registry, 5*time.Second)
	go m.PollPendingRequests(pollCtx, pendingOutboundGauge{registry}, 5*time.Second)

	shutdownGrace, err := time.ParseDuration(cfg.Server.ShutdownGrace)
	if err != nil {
		shutdownGrace = session.DefaultShutdownGrace
	}

	switch cfg.Server.Transport {
	case "sse":
		if err := serveSSE(ctx, cfg, registry, router, srv, m, reg, logger, shutdownGrace); err != nil {
			return err
		}
	default:
		if err := serveStdio(ctx, registry, router, srv, m, logger, shutdownGrace); err != nil {
			return err
		}
	}

	logger.Info("mcpcore stopped")
	return nil
}

// pendingOutboundGauge adapts session.Registry to metrics.Gauged: there is
// no single process-wide correlator to sample (each session owns its own),
// so this sums every live session's outstanding outbound request count.
type pendingOutboundGauge struct {
	registry *session.Registry
}

func (g pendingOutboundGauge) Len() int { return g.registry.PendingOutboundLen() }

func serveStdio(ctx context.Context, registry *session.Registry, router *session.Router, srv *mcpserver.Server, m *metrics.Metrics, logger *slog.Logger, grace time.Duration) error {
	tr := stdio.New(os.Stdout)
	sess := session.New("", tr, router, srv.Capabilities(), logger)
	sess.SetDispatchRecorder(m)
	registry.Put(sess)

	errCh := make(chan error, 1)
	go func() {
		errCh <- stdio.Serve(ctx, os.Stdin, sess, logger)
	}()

	select {
	case <-ctx.Done():
		_ = sess.Close(grace)
		return nil
	case err := <-errCh:
		_ = sess.Close(grace)
		return err
	}
}

func serveSSE(ctx context.Context, cfg *config.Config, registry *session.Registry, router *session.Router, srv *mcpserver.Server, m *metrics.Metrics, reg *prometheus.Registry, logger *slog.Logger, grace time.Duration) error {
	factory := func(id string, t session.Transport) *session.Session {
		sess := session.New(id, t, router, srv.Capabilities(), logger)
		sess.SetDispatchRecorder(m)
		return sess
	}
	sseServer := sse.NewServer(registry, factory, cfg.Server.BasePath, logger)

	mux := http.NewServeMux()
	mux.Handle("/", sseServer.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.Auth.Enabled {
		gate, err := buildAuthGate(cfg, m, logger)
		if err != nil {
			return err
		}
		mux.HandleFunc("/.well-known/oauth-protected-resource", gate.ProtectedResourceHandler())
		handler = gate.Middleware(mux)
	}
	handler = m.Middleware(handler)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving sse", "addr", cfg.Server.HTTPAddr, "base_path", cfg.Server.BasePath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	registry.CloseAll(grace)
	return httpServer.Shutdown(shutdownCtx)
}

func buildAuthGate(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*authgate.Gate, error) {
	clockSkew, err := time.ParseDuration(cfg.Auth.ClockSkew)
	if err != nil {
		clockSkew = time.Minute
	}
	jwksTTL, err := time.ParseDuration(cfg.Auth.JWKSCacheTTL)
	if err != nil {
		jwksTTL = 10 * time.Minute
	}
	return authgate.New(authgate.Config{
		Issuer:               cfg.Auth.Issuer,
		Audience:             cfg.Auth.Audience,
		JWKSURL:              cfg.Auth.JWKSURL,
		JWKSCacheTTL:         jwksTTL,
		ClockSkew:            clockSkew,
		AuthorizationServers: []string{cfg.Auth.Issuer},
		Logger:               logger,
		OnFailure:            m.RecordAuthFailure,
	}), nil
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
