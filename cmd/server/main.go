package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"linguachat/config"
	"linguachat/events"
	"linguachat/handlers"
	"linguachat/logging"
	"linguachat/metrics"
	"linguachat/repository"
	"linguachat/repository/pebblestore"
	"linguachat/repository/postgres"
	"linguachat/services"
	"linguachat/translate"
	"linguachat/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $CHAT_CONFIG)")
	flag.Parse()

	// --- config/env ---
	cfg, err := config.Load(*configPath)
	logging.Init(cfg.Log.Level, cfg.Log.Format)
	log := logging.For("main")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close storage")
		}
	}()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	// --- metrics/bus/translator ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	bus := events.NewInProcessBus(m, logging.For("events"))
	translator := newTranslator(cfg, log)

	// --- services ---
	authSvc := services.NewAuthService(store.Users(), &cfg)
	userSvc := services.NewUserService(store)
	msgSvc := services.NewMessageService(store, bus, translator, m, &cfg)
	reactSvc := services.NewReactionService(store, bus, m)
	subSvc := services.NewSubscriptionService(bus, store)

	// --- websocket hub ---
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(subSvc, m)
	go hub.Run(hubCtx)

	limiter := handlers.NewRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst)
	defer limiter.Shutdown()

	router := handlers.NewRouter(handlers.Deps{
		Config:    &cfg,
		Auth:      authSvc,
		Users:     userSvc,
		Messages:  msgSvc,
		Reactions: reactSvc,
		Hub:       hub,
		Metrics:   m,
		Gatherer:  reg,
		Limiter:   limiter,
		Log:       logging.For("http"),
	})

	// --- server setup ---
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("chat server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket connections did not close in time")
	}
	bus.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.Storage.DatabaseURL)
	case config.StoragePebble:
		return pebblestore.Open(cfg.Storage.PebblePath)
	default:
		return repository.NewMemoryStore(), nil
	}
}

func newTranslator(cfg config.Config, log zerolog.Logger) translate.Translator {
	if cfg.Translator.Provider != config.TranslatorWatson {
		log.Warn().Msg("no translation provider configured, messages are served untranslated")
		return translate.Identity{}
	}
	return translate.NewWatsonClient(translate.WatsonConfig{
		URL:     cfg.Translator.URL,
		APIKey:  cfg.Translator.APIKey,
		Version: cfg.Translator.Version,
		Timeout: cfg.Translator.Timeout,
	})
}
