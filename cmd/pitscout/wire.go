package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pitscout/internal/provider"
	"pitscout/internal/symbols"
	"pitscout/pkg/model"
)

// buildProvider assembles the bar source chain from config. The returned
// cleanup closes the Redis connection when one was opened.
func buildProvider(ctx context.Context, memoryCache bool) (provider.Provider, func()) {
	xgb := provider.NewXuangubaoProvider(cfg.Provider.XuangubaoURL, cfg.Provider.RateLimit)
	yahoo := provider.NewYahooProvider(cfg.Provider.YahooURL)

	sources := []provider.Provider{xgb, yahoo}
	if cfg.Provider.Primary == "yahoo" {
		sources = []provider.Provider{yahoo, xgb}
	}
	if !cfg.Provider.Fallback {
		sources = sources[:1]
	}

	var p provider.Provider = provider.NewFallbackProvider(sources...)
	cleanup := func() {}

	if cfg.Cache.Redis {
		store, err := provider.NewRedisStore(ctx, provider.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unavailable, bar cache disabled")
		} else {
			p = provider.NewRedisCachingProvider(p, store, cfg.Cache.TTL, logger)
			cleanup = func() { store.Close() }
		}
	}

	if memoryCache && cfg.Cache.MemoryDays > 0 {
		p = provider.NewCachingProvider(p, cfg.Cache.MemoryDays)
	}
	return p, cleanup
}

// loadStocks resolves the stock list: explicit codes, a named universe, or the CSV file
func loadStocks(codes, universe, file string) ([]model.Stock, error) {
	if codes != "" {
		return symbols.LoadCodes(strings.Split(codes, ",")), nil
	}
	if universe != "" {
		stocks := symbols.GetUniverse(symbols.Universe(universe))
		if stocks == nil {
			return nil, fmt.Errorf("unknown universe: %s", universe)
		}
		return stocks, nil
	}
	if file == "" {
		file = cfg.Stocks.File
	}
	return symbols.NewLoader(file, cfg.Stocks.LimitUpFile).Load()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
