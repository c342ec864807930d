package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpesagw/internal/config"
	"mpesagw/internal/daraja"
	"mpesagw/internal/dispatch"
	httpx "mpesagw/internal/http"
	"mpesagw/internal/http/handlers"
	"mpesagw/internal/lifecycle"
	"mpesagw/internal/store/postgres"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init DB
	pool := postgres.MustOpen(ctx, cfg.DB.DSN)
	defer pool.Close()
	txns := postgres.NewTransactionRepo(pool)
	merchants := postgres.NewMerchantRepo(pool)
	apiKeys := postgres.NewAPIClientRepo(pool)

	// Daraja client with the configured token cache backend.
	tokenStore := daraja.NewMemoryTokenStore()
	if cfg.Daraja.TokenStore == "redis" {
		tokenStore = daraja.NewRedisTokenStore(cfg.Redis.Addr)
	}
	tokens := daraja.NewTokenSource(cfg.Daraja.Environment, tokenStore)
	client := daraja.NewClient(cfg.Daraja.Environment, tokens)

	coord := lifecycle.New(txns, client, cfg.Callbacks())

	// Queued disbursements.
	dispatcher := dispatch.New(coord)
	go dispatcher.Run(ctx)

	// Router
	r := httpx.NewRouter(httpx.RouterDependencies{
		Payments:  handlers.NewPayments(coord, dispatcher, merchants, txns),
		Callbacks: handlers.NewCallbacks(coord),
		APIKeys:   apiKeys,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Msgf("mpesagw API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}
