package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt5rtd/internal/infrastructure/config"
	"mt5rtd/internal/infrastructure/logger"
	"mt5rtd/internal/infrastructure/svc"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml (empty: env only)")
	flag.Parse()

	logger.Setup("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context init failed")
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Str("bridge", cfg.MT5.BridgeURL).
		Int("symbols", len(cfg.Symbols.List)).
		Float64("poll_interval_seconds", cfg.RTD.PollIntervalSeconds).
		Msg("rtdworker started")

	if cfg.App.AutoStart {
		if err := sc.Worker.Start(ctx); err != nil {
			log.Error().Err(err).Msg("rtd worker start failed, use POST /api/rtd/start to retry")
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- sc.HTTP.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http api exited")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sc.HTTP.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("rtdworker stopped")
}
