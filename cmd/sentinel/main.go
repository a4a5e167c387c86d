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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/price-sentinel/api"
	"github.com/aluiziolira/price-sentinel/config"
	"github.com/aluiziolira/price-sentinel/dedup"
	"github.com/aluiziolira/price-sentinel/fetch"
	"github.com/aluiziolira/price-sentinel/health"
	"github.com/aluiziolira/price-sentinel/kv"
	"github.com/aluiziolira/price-sentinel/models"
	"github.com/aluiziolira/price-sentinel/notify"
	"github.com/aluiziolira/price-sentinel/pipeline"
	"github.com/aluiziolira/price-sentinel/scheduler"
	"github.com/aluiziolira/price-sentinel/store"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging")
	statusAddr := flag.String("status-addr", "", "Status API listen address (overrides STATUS_ADDR)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (overrides METRICS_ADDR)")
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	cfg.Verbose = cfg.Verbose || *verbose

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("monitor stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ephemeral, err := kv.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer ephemeral.Close()

	baseline, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer baseline.Close()

	notifier := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramAlertsChatID, slog.Default())

	thresholds := make(map[models.Source]health.Thresholds, len(cfg.Sources))
	for source, sc := range cfg.Sources {
		thresholds[source] = health.Thresholds{Failures: sc.FailureThreshold, Empty: sc.EmptyThreshold}
	}
	monitor := health.NewMonitor(ephemeral, notifier, thresholds, slog.Default())

	metrics := pipeline.NewMetrics()
	runner := pipeline.NewRunner(cfg, baseline, dedup.New(ephemeral), monitor, notifier, metrics, slog.Default())

	fetchers, discovery, err := buildFetchers(cfg, baseline)
	if err != nil {
		return err
	}

	sched := scheduler.New(slog.Default())
	for _, fetcher := range fetchers {
		fetcher := fetcher
		err := sched.Add(scheduler.Task{
			Name:     string(fetcher.Source()),
			Interval: cfg.Source(fetcher.Source()).Interval,
			Timeout:  scanTimeout(cfg, fetcher.Source()),
			Run: func(ctx context.Context) error {
				return runner.Run(ctx, fetcher)
			},
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", fetcher.Source(), err)
		}
	}
	if err := sched.Add(scheduler.Task{
		Name:     "discovery",
		Interval: cfg.DiscoveryInterval,
		Timeout:  10 * time.Minute,
		Run:      discovery.Run,
	}); err != nil {
		return fmt.Errorf("schedule discovery: %w", err)
	}

	statusServer := startHTTPServer(cfg.StatusAddr, api.NewServer(monitor, baseline, slog.Default()).Handler(), "status")
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = startHTTPServer(cfg.MetricsAddr,
			promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}), "metrics")
	}

	slog.Info("monitor started",
		slog.Int("sources", len(fetchers)),
		slog.String("status_addr", cfg.StatusAddr),
	)

	sched.Start(ctx)
	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight scans to finish")
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("status server shutdown failed", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}

func buildFetchers(cfg *config.Config, baseline store.Store) ([]pipeline.Fetcher, *fetch.Discovery, error) {
	client := fetch.NewClient(cfg.FetchTimeout, cfg.UserAgent, nil)

	officeDepot, err := fetch.NewOfficeDepot(cfg.OfficeDepotURLs, cfg.UserAgent, cfg.FetchTimeout, nil, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("build officedepot fetcher: %w", err)
	}

	walmart, err := fetch.NewWalmart(cfg.WalmartURLs, cfg.UserAgent, cfg.FetchTimeout, nil, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("build walmart fetcher: %w", err)
	}

	amazonSC := cfg.Source(models.SourceAmazon)
	fetchers := []pipeline.Fetcher{
		fetch.NewAmazon(client, cfg.AmazonAPIKey, cfg.AmazonDomainID, amazonSC.MinDropPct, amazonSC.MinPrice, slog.Default()),
		fetch.NewPromoDescuentos(client, slog.Default()),
		officeDepot,
		walmart,
		fetch.NewMercadoLibre(client, baseline, cfg.FetchWorkers, slog.Default()),
	}

	discovery := fetch.NewDiscovery(client, baseline, cfg.DiscoveryKeywords,
		cfg.DiscoverySort, cfg.DiscoveryFreeShipping, slog.Default())
	return fetchers, discovery, nil
}

// scanTimeout bounds one scan well under two intervals so a wedged run
// cannot stack up behind the ticker forever.
func scanTimeout(cfg *config.Config, source models.Source) time.Duration {
	interval := cfg.Source(source).Interval
	timeout := interval * 2
	if timeout < time.Minute {
		timeout = time.Minute
	}
	return timeout
}

func startHTTPServer(addr string, handler http.Handler, name string) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(name+" server failed", slog.Any("error", err))
		}
	}()
	slog.Info(name+" server enabled", slog.String("addr", addr))
	return server
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
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
