package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/advisor"
	"marketfeed/internal/cache"
	"marketfeed/internal/config"
	"marketfeed/internal/httpx"
	"marketfeed/internal/logger"
	"marketfeed/internal/metrics"
	"marketfeed/internal/provider/mapping"
	"marketfeed/internal/registry"
)

func main() {
	// Config
	cfg, err := bootstrap(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zap.L().Sync() }()

	for _, name := range []string{
		mapping.Polygon, mapping.TwelveData, mapping.AlphaVantage,
		mapping.OpenExchangeRates, mapping.CommoditiesAPI, mapping.FRED,
	} {
		if p, _ := cfg.Provider(name); p.Enabled && p.Credential == "" {
			zap.L().Warn("provider enabled without credential; it will be skipped", zap.String("provider", name))
		}
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)

	srv := &server{
		chains:  registry.New(cfg, httpClient),
		cache:   cache.New(time.Duration(cfg.Server.CacheTTLSeconds)*time.Second, cfg.Server.CacheMaxItems),
		advisor: advisor.Noop{},
		timeout: timeout,
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withRequestID(withJSONHeaders(withGzip(recoverPanic(limitBody(metrics.InstrumentHandler(srv.routes())))))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.LongestChain())*timeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zap.L().Info("server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = logger.Shutdown(shutdownCtx)
}

// bootstrap loads the config and installs the global logger. Its errors are
// reported with the standard logger since zap is not set up yet.
func bootstrap(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return cfg, fmt.Errorf("logger: %w", err)
	}
	return cfg, nil
}
