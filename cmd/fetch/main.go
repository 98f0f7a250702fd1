package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/config"
	"marketfeed/internal/fallback"
	"marketfeed/internal/httpx"
	"marketfeed/internal/logger"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/mapping"
	"marketfeed/internal/registry"
)

func main() {
	var assetID string
	var kind string
	var timeframe string
	var timeout int
	var configPath string
	var verbose bool

	flag.StringVar(&assetID, "asset", getenv("ASSET", "EURUSD"), "canonical asset id (e.g. EURUSD, XAUUSD, DGS10)")
	flag.StringVar(&kind, "kind", getenv("KIND", string(provider.MarketData)), "request kind: market, rate or interest")
	flag.StringVar(&timeframe, "timeframe", getenv("TIMEFRAME", mapping.DefaultTimeframe), "timeframe for market requests (1m,5m,15m,1h,4h,1d,1w)")
	flag.IntVar(&timeout, "timeout", 0, "request timeout seconds (overrides config)")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.yaml (optional)")
	flag.BoolVar(&verbose, "v", false, "log every provider attempt to stderr")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}
	cfg.Logger.Format = "console"
	if verbose {
		cfg.Logger.Level = "debug"
	} else {
		cfg.Logger.Level = "warn"
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fatalf("logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	req, err := buildRequest(provider.Kind(strings.ToLower(kind)), assetID, timeframe)
	if err != nil {
		fatalf("%v", err)
	}

	d := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	reg := registry.New(cfg, httpx.New(d))

	res := fallback.Run(context.Background(), req, reg.Registrations(req.Kind, req.AssetID), fallback.WithAttemptTimeout(d))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		fatalf("encode: %v", err)
	}
	if res.Fields.Empty() {
		os.Exit(1)
	}
}

func buildRequest(kind provider.Kind, assetID, timeframe string) (provider.Request, error) {
	asset, ok := mapping.LookupAsset(assetID)
	if !ok {
		return provider.Request{}, fmt.Errorf("unknown asset %q", assetID)
	}
	if !asset.Supports(kind) {
		return provider.Request{}, fmt.Errorf("asset %s does not support kind %q", asset.ID, kind)
	}
	if kind != provider.MarketData {
		return asset.Request(kind, ""), nil
	}
	tf, ok := mapping.LookupTimeframe(timeframe)
	if !ok {
		return provider.Request{}, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	return asset.Request(kind, tf.ID), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
