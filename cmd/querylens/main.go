package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"

	"github.com/querylens/querylens/internal/adapter/mcp"
	"github.com/querylens/querylens/internal/adapter/postgres"
	"github.com/querylens/querylens/internal/audit"
	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/core/plananalysis"
	"github.com/querylens/querylens/internal/core/planparse"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/service"
	"github.com/querylens/querylens/internal/telemetry"
	"github.com/querylens/querylens/internal/tuning"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting querylens",
		slog.String("version", version),
		slog.String("dialect", string(cfg.Dialect)),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("transport", cfg.Transport),
		slog.Bool("otel", cfg.OTelEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Observability (optional).
	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = port.NoopInstrumentation{}
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "querylens", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("querylens")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	// Audit log (optional).
	var auditor port.AnalysisAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fileAuditor.Close() }()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Analyzer tuning (optional).
	thresholds := plananalysis.DefaultThresholds()
	limits := planparse.DefaultLimits()
	if cfg.TuningFile != "" {
		thresholds, limits, err = tuning.LoadFromFile(cfg.TuningFile)
		if err != nil {
			return fmt.Errorf("loading tuning file: %w", err)
		}
		logger.Info("tuning loaded", slog.String("file", cfg.TuningFile))
	}

	// Live plan collector (optional, postgres only).
	var collector port.PlanCollector
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		collector = postgres.NewCollector(pool, cfg.QueryTimeout)
		defer collector.Close()
		logger.Info("plan collector connected", slog.String("database_url", redactDSN(cfg.DatabaseURL)))
	}

	analysisSvc, err := service.NewAnalysisService(cfg.Dialect, thresholds, limits,
		collector, auditor, logger, tracer, inst)
	if err != nil {
		return fmt.Errorf("building analysis service: %w", err)
	}

	mcpServer := mcp.NewServer(version, analysisSvc, logger, tracer, inst, collector != nil)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, cfg, mcpServer, logger)
	}

	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// serveHTTP runs the MCP server over the streamable HTTP transport with
// bearer-token auth and a plain /health endpoint.
func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcpserver.MCPServer, logger *slog.Logger) error {
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// parseFlags parses CLI flags into config overrides. Pointer fields stay nil
// for flags the caller did not set, so env vars keep their values.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("querylens", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	dialect := fs.String("dialect", "", "target SQL dialect: postgres, mysql, or sqlite")
	databaseURL := fs.String("database-url", "", "PostgreSQL connection string for live plan collection")
	queryTimeout := fs.Duration("query-timeout", 0, "timeout for plan collection queries")
	tuningFile := fs.String("tuning-file", "", "YAML file overriding analyzer thresholds")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, or error")
	transport := fs.String("transport", "", "MCP transport: stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for the http transport")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token required by the http transport")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	auditLog := fs.String("audit-log", "", "path to an NDJSON audit log file")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum database connections")
	poolMinConns := fs.Int("pool-min-conns", -1, "minimum database connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, fmt.Errorf("parsing flags: %w", err)
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		AuditLog:    *auditLog,
	}
	if *dialect != "" {
		o.Dialect = dialect
	}
	if *databaseURL != "" {
		o.DatabaseURL = databaseURL
	}
	if *queryTimeout != 0 {
		o.QueryTimeout = queryTimeout
	}
	if *tuningFile != "" {
		o.TuningFile = tuningFile
	}
	if *logLevel != "" {
		o.LogLevel = logLevel
	}
	if *transport != "" {
		o.Transport = transport
	}
	if *httpAddr != "" {
		o.HTTPAddr = httpAddr
	}
	if *httpBearerToken != "" {
		o.HTTPBearerToken = httpBearerToken
	}
	if *poolMaxConns != 0 {
		v := int32(*poolMaxConns)
		o.PoolMaxConns = &v
	}
	if *poolMinConns >= 0 {
		v := int32(*poolMinConns)
		o.PoolMinConns = &v
	}
	if *poolMaxConnLifetime != 0 {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}
	return o, nil
}

// redactDSN hides the password in a connection string for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
