package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/otxsync/internal/adapters/crits"
	"github.com/okian/otxsync/internal/adapters/otx"
	app "github.com/okian/otxsync/internal/app"
	"github.com/okian/otxsync/internal/config"
	"github.com/okian/otxsync/internal/domain/dedupe"
	"github.com/okian/otxsync/pkg/logger"
	"github.com/okian/otxsync/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM. A run in flight always
	// completes its pulse sequence; the signal only stops the interval loop
	// between runs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	feed := otx.NewClient(cfg.OTXURL, cfg.OTXAPIKey,
		otx.WithPageSize(cfg.PageSize),
		otx.WithProxy(cfg.OTXProxy),
	)
	repo := crits.NewClient(cfg.BaseURL(), cfg.CRITsUsername, cfg.APIKey(),
		crits.WithProxy(cfg.CRITsProxy),
		crits.WithInsecureSkipVerify(!cfg.CRITsVerify),
	)

	svc := app.New(
		app.WithLogger(log),
		app.WithFeed(app.NewOTXFeed(feed)),
		app.WithRepository(repo),
		app.WithSource(cfg.Source),
		app.WithMaxAgeDays(cfg.MaxAgeDays),
		app.WithSeenCache(dedupe.NewSeenCache(dedupe.WithMaxSize(cfg.DedupeSize))),
	)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, log, cfg.MetricsAddr)
	}

	if _, err := svc.Run(ctx); err != nil {
		log.Error(ctx, "sync run failed", logger.Error(err))
		os.Exit(1)
	}

	if cfg.PollInterval <= 0 {
		return
	}

	// Interval mode: repeat the one-shot pipeline on a ticker until a
	// shutdown signal arrives.
	log.Info(ctx, "entering interval mode", logger.String("poll_interval", cfg.PollInterval.String()))
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "shutting down")
			return
		case <-ticker.C:
			if _, err := svc.Run(ctx); err != nil {
				log.Error(ctx, "sync run failed", logger.Error(err))
			}
		}
	}
}

// serveMetrics exposes the Prometheus registry for the process lifetime.
func serveMetrics(ctx context.Context, log logger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "serving metrics", logger.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(ctx, "metrics server failed", logger.Error(err))
	}
}
