package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/naramarket/go-naramarket/config"
	"github.com/naramarket/go-naramarket/crawler"
	"github.com/naramarket/go-naramarket/tools"
)

func main() {
	defaultCfg := config.DefaultConfig()
	serviceKeyDefault := ""
	if value, ok := config.EnvString("NARAMARKET_SERVICE_KEY"); ok {
		serviceKeyDefault = value
	}
	outputDirDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("NARAMARKET_OUTPUT_DIR"); ok {
		outputDirDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("NARAMARKET_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	numRowsDefault := defaultCfg.NumRows
	if value, ok, err := config.EnvInt("NARAMARKET_NUM_ROWS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid NARAMARKET_NUM_ROWS: %v\n", err)
		os.Exit(1)
	} else if ok {
		numRowsDefault = value
	}
	windowDaysDefault := defaultCfg.WindowDays
	if value, ok, err := config.EnvInt("NARAMARKET_WINDOW_DAYS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid NARAMARKET_WINDOW_DAYS: %v\n", err)
		os.Exit(1)
	} else if ok {
		windowDaysDefault = value
	}
	totalDaysDefault := defaultCfg.TotalDays
	if value, ok, err := config.EnvInt("NARAMARKET_TOTAL_DAYS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid NARAMARKET_TOTAL_DAYS: %v\n", err)
		os.Exit(1)
	} else if ok {
		totalDaysDefault = value
	}
	timeoutDefault := int(defaultCfg.Timeout / time.Second)
	if value, ok, err := config.EnvInt("NARAMARKET_TIMEOUT_SEC"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid NARAMARKET_TIMEOUT_SEC: %v\n", err)
		os.Exit(1)
	} else if ok {
		timeoutDefault = value
	}

	transport := flag.String("transport", "stdio", "MCP transport: stdio or http")
	addr := flag.String("addr", ":8000", "Listen address for the http transport")
	serviceKey := flag.String("service-key", serviceKeyDefault, "data.go.kr service key")
	outputDir := flag.String("output-dir", outputDirDefault, "Directory for relative CSV output paths")
	numRows := flag.Int("num-rows", numRowsDefault, "Items requested per list API page")
	windowDays := flag.Int("window-days", windowDaysDefault, "Days per crawl window")
	totalDays := flag.Int("total-days", totalDaysDefault, "Default total days per crawl span")
	timeoutSec := flag.Int("timeout", timeoutDefault, "API request timeout (seconds)")
	delayMs := flag.Int("delay", int(defaultCfg.Delay/time.Millisecond), "Delay between page requests (milliseconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum attempts per page request")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	detailCache := flag.Int("detail-cache", defaultCfg.DetailCacheSize, "Detail attribute LRU cache size")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.ServiceKey = *serviceKey
	cfg.OutputDir = *outputDir
	cfg.NumRows = *numRows
	cfg.WindowDays = *windowDays
	cfg.TotalDays = *totalDays
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.DetailCacheSize = *detailCache
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ValidateServiceKey(cfg.ServiceKey); err != nil {
		// Not fatal: tools report config_error per call, so the server
		// can still answer server_info and schema requests.
		slog.Warn("service key missing or placeholder; API tools will fail", slog.Any("error", err))
	}

	metrics := crawler.NewMetrics()
	svc, err := tools.NewService(cfg, nil, metrics)
	if err != nil {
		slog.Error("initialising tool service", slog.Any("error", err))
		os.Exit(1)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: tools.AppName, Version: tools.Version}, nil)
	tools.Register(server, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting server",
		slog.String("transport", *transport),
		slog.String("version", tools.Version),
		slog.Int("tools", len(tools.ToolNames())),
	)

	switch *transport {
	case "stdio":
		err = server.Run(ctx, &mcp.StdioTransport{})
	case "http":
		err = serveHTTP(ctx, server, *addr)
	default:
		slog.Error("unsupported transport", slog.String("transport", *transport))
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	slog.Info("server stopped cleanly")
}

// serveHTTP exposes the MCP server on the streamable HTTP transport and
// shuts down gracefully when ctx is cancelled.
func serveHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	httpServer := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newLogger writes to stderr: the stdio transport owns stdout.
func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
