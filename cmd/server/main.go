// Command server runs the churnboard API and dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/churnboard/churnboard/internal/adapters/http/api"
	"github.com/churnboard/churnboard/internal/adapters/http/site"
	"github.com/churnboard/churnboard/internal/adapters/http/swagger"
	"github.com/churnboard/churnboard/internal/adapters/http/web"
	"github.com/churnboard/churnboard/internal/adapters/mail"
	app "github.com/churnboard/churnboard/internal/app"
	"github.com/churnboard/churnboard/internal/config"
	"github.com/churnboard/churnboard/internal/domain/prediction"
	"github.com/churnboard/churnboard/pkg/fetch"
	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/churnboard/churnboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	inferenceTimeout          = 15 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := newService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc, serviceMetricsInterval)

	handler, err := newHandler(ctx, cfg, svc, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newService builds the service from configuration: a remote predictor
// when an inference endpoint is set, SMTP delivery when a relay is set.
func newService(cfg *config.Config, log logger.Logger) *app.Service {
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithHighProbThreshold(cfg.HighProbThreshold),
	}

	if cfg.InferenceURL != "" {
		runner := fetch.NewRunner(
			fetch.WithHTTPClient(&http.Client{Timeout: inferenceTimeout}),
			fetch.WithLogger(log.Named("inference")),
		)
		opts = append(opts, app.WithPredictor(
			prediction.NewRemote(runner, cfg.InferenceURL, prediction.WithAPIKey(cfg.InferenceAPIKey)),
		))
	}

	if cfg.SMTPHost != "" {
		opts = append(opts, app.WithSender(mail.NewSMTP(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			To:       cfg.MailTo,
		})))
	} else {
		opts = append(opts, app.WithSender(mail.NewLog(log.Named("mail"), cfg.MailTo)))
	}

	return app.New(opts...)
}

// newHandler mounts every route on one mux.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	api.NewServer(svc, svc, api.Limits{
		DefaultList: cfg.DefaultListLimit,
		MaxList:     cfg.MaxListLimit,
		MaxRisk:     cfg.MaxRiskLimit,
		MaxBody:     cfg.MaxBodyBytes,
	}).Register(ctx, mux)

	base := cfg.APIBaseURL
	if base == "" {
		base = web.SelfURL(cfg.Addr)
	}
	views, err := web.New(base,
		web.WithLogger(log.Named("web")),
		web.WithHighProbThreshold(cfg.HighProbThreshold),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build views: %w", err)
	}
	views.Register(ctx, mux)

	return mux, nil
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics publishes queue and worker gauges. GetStats
// refreshes the customer total itself.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workers, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workers)
	}
}
