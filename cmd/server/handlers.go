package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/advisor"
	"marketfeed/internal/aggregate"
	"marketfeed/internal/cache"
	"marketfeed/internal/fallback"
	"marketfeed/internal/metrics"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/mapping"
	"marketfeed/internal/registry"
)

// maxBatch caps the number of assets in one batch request.
const maxBatch = 50

// chainSource is satisfied by *registry.Registry.
type chainSource interface {
	Registrations(kind provider.Kind, assetID string) []provider.Registration
	Chains() map[provider.Kind][]registry.ChainEntry
}

type server struct {
	chains  chainSource
	cache   *cache.Results
	advisor advisor.Advisor
	timeout time.Duration
}

func (s *server) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/api/assets", handleAssets).Methods(http.MethodGet)
	router.HandleFunc("/api/providers", s.handleProviders).Methods(http.MethodGet)
	router.HandleFunc("/api/latest", s.handleLatest).Methods(http.MethodGet)
	router.HandleFunc("/api/market/{asset}", s.handleKind(provider.MarketData)).Methods(http.MethodGet)
	router.HandleFunc("/api/rates/{asset}", s.handleKind(provider.ExchangeRate)).Methods(http.MethodGet)
	router.HandleFunc("/api/interest/{asset}", s.handleKind(provider.InterestRate)).Methods(http.MethodGet)
	router.HandleFunc("/api/advice/{asset}", s.handleAdvice).Methods(http.MethodGet)
	router.HandleFunc("/api/batch", s.handleBatch).Methods(http.MethodPost)
	return router
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type assetView struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"displayName"`
	Class       string          `json:"class"`
	Kinds       []provider.Kind `json:"kinds"`
}

func handleAssets(w http.ResponseWriter, _ *http.Request) {
	all := mapping.Assets()
	out := make([]assetView, 0, len(all))
	for _, a := range all {
		out = append(out, assetView{ID: a.ID, DisplayName: a.DisplayName, Class: string(a.Class), Kinds: a.Kinds})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

func (s *server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"chains": s.chains.Chains()})
}

func (s *server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"latest": aggregate.LatestByAsset(s.cache.Snapshots())})
}

func (s *server) handleKind(kind provider.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := resolve(kind, mux.Vars(r)["asset"], r.URL.Query().Get("timeframe"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, s.fetch(r.Context(), req))
	}
}

type adviceResponse struct {
	Result         provider.Result        `json:"result"`
	Recommendation advisor.Recommendation `json:"recommendation"`
}

func (s *server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	req, err := resolve(provider.MarketData, mux.Vars(r)["asset"], r.URL.Query().Get("timeframe"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := s.fetch(r.Context(), req)
	rec, err := s.advisor.Recommend(r.Context(), advisor.NewInput(req, res))
	if err != nil {
		rec = advisor.Recommendation{Action: advisor.Hold, Error: err.Error()}
	}
	writeJSON(w, http.StatusOK, adviceResponse{Result: res, Recommendation: rec})
}

type batchBody struct {
	Kind      provider.Kind `json:"kind"`
	Assets    []string      `json:"assets"`
	Timeframe string        `json:"timeframe"`
}

type batchItem struct {
	AssetID string          `json:"assetId"`
	Result  provider.Result `json:"result"`
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var b batchBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(b.Assets) == 0 {
		http.Error(w, "assets cannot be empty", http.StatusBadRequest)
		return
	}
	if len(b.Assets) > maxBatch {
		http.Error(w, fmt.Sprintf("too many assets (max %d)", maxBatch), http.StatusBadRequest)
		return
	}
	if b.Kind == "" {
		b.Kind = provider.MarketData
	}

	reqs := make([]provider.Request, len(b.Assets))
	for i, id := range b.Assets {
		req, err := resolve(b.Kind, id, b.Timeframe)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reqs[i] = req
	}

	// one request per asset; failures live in each Result
	items := make([]batchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, req := range reqs {
		g.Go(func() error {
			items[i] = batchItem{AssetID: req.AssetID, Result: s.fetch(r.Context(), req)}
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

// fetch runs the chain through the cache. The chain outlives a cancelled
// caller so coalesced waiters still get a result. Each provider attempt gets
// the full timeout.
func (s *server) fetch(ctx context.Context, req provider.Request) provider.Result {
	return s.cache.Fetch(ctx, req, func(ctx context.Context, req provider.Request) provider.Result {
		regs := s.chains.Registrations(req.Kind, req.AssetID)
		return fallback.Run(context.WithoutCancel(ctx), req, regs, fallback.WithAttemptTimeout(s.timeout))
	})
}

// resolve validates the path parameters into a canonical request.
func resolve(kind provider.Kind, assetID, timeframeID string) (provider.Request, error) {
	switch kind {
	case provider.MarketData, provider.ExchangeRate, provider.InterestRate:
	default:
		return provider.Request{}, fmt.Errorf("unknown kind %q", kind)
	}
	asset, ok := mapping.LookupAsset(assetID)
	if !ok {
		return provider.Request{}, fmt.Errorf("unknown asset %q", strings.TrimSpace(assetID))
	}
	if !asset.Supports(kind) {
		return provider.Request{}, fmt.Errorf("asset %s does not support %s requests", asset.ID, kind)
	}
	if kind != provider.MarketData {
		return asset.Request(kind, ""), nil
	}
	tf, ok := mapping.LookupTimeframe(timeframeID)
	if !ok {
		return provider.Request{}, fmt.Errorf("unknown timeframe %q", timeframeID)
	}
	return asset.Request(kind, tf.ID), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
