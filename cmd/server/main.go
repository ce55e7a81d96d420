package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"covidboard/internal/api"
	"covidboard/internal/cache"
	"covidboard/internal/config"
	"covidboard/internal/engine"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.SetLevel(cfg.Log.Lvl())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. Dataset source + cache
	var src engine.Source = &engine.HTTPSource{
		URL:    cfg.Dataset.URL,
		Client: &http.Client{Timeout: cfg.Dataset.Timeout},
	}
	if cfg.Dataset.Path != "" {
		src = &engine.FileSource{Path: cfg.Dataset.Path}
	}
	datasets := cache.New[*engine.ColumnStore](cfg.Dataset.TTL, func(ctx context.Context, _ string) (*engine.ColumnStore, error) {
		return engine.Load(ctx, src)
	})
	go datasets.Run(ctx)

	// 2. Initialize Echo (Starts Instantly)
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(cfg.Log.Lvl())
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	if len(cfg.Server.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	if cfg.Server.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit))))
	}

	h := api.NewHandler(api.ProviderFunc(func(ctx context.Context) (*engine.ColumnStore, error) {
		return datasets.Get(ctx, cache.DatasetKey)
	}), cfg.Dashboard.DefaultStart, cfg.Dashboard.DefaultEnd)
	h.RegisterRoutes(e)

	// 3. Warm the cache in the background; requests that arrive first wait on
	// the same load.
	warm := func() {
		t0 := time.Now()
		if _, err := datasets.Get(ctx, cache.DatasetKey); err != nil {
			log.Errorf("BACKGROUND: dataset load failed: %v", err)
			return
		}
		log.Infof("BACKGROUND: dataset ready in %v", time.Since(t0))
	}
	go warm()

	if fs, ok := src.(*engine.FileSource); ok {
		go func() {
			err := cache.WatchFile(ctx, fs.Path, func() {
				datasets.Invalidate(cache.DatasetKey)
				warm()
			})
			if err != nil {
				log.Warnf("dataset file watch disabled: %v", err)
			}
		}()
	}

	// 4. Start Server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		log.Infof("Server ready on %s (dataset loading in background...)", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server stopped: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
}
