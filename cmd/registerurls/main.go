// Command registerurls registers the C2B validation/confirmation URLs for a
// merchant shortcode. One-shot admin tool; run once per shortcode after the
// callback base URL changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"mpesagw/internal/config"
	"mpesagw/internal/daraja"
	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/lifecycle"
	"mpesagw/internal/store"
	"mpesagw/internal/store/postgres"

	"github.com/rs/zerolog/log"
)

func main() {
	merchantID := flag.Int64("merchant", 0, "merchant id (default: first merchant)")
	shortcode := flag.String("shortcode", "", "override the merchant's shortcode")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	pool := postgres.MustOpen(ctx, cfg.DB.DSN)
	defer pool.Close()
	merchants := postgres.NewMerchantRepo(pool)
	txns := postgres.NewTransactionRepo(pool)

	m, err := resolve(ctx, merchants, *merchantID)
	if err != nil {
		log.Fatal().Err(err).Msg("merchant lookup failed")
	}

	tokens := daraja.NewTokenSource(cfg.Daraja.Environment, daraja.NewMemoryTokenStore())
	client := daraja.NewClient(cfg.Daraja.Environment, tokens)
	coord := lifecycle.New(txns, client, cfg.Callbacks())

	ack := coord.RegisterURLs(ctx, m, *shortcode)
	if !ack.OK() {
		log.Error().Str("reason", ack.Failure()).Msg("url registration rejected")
		os.Exit(1)
	}
	fmt.Printf("registered: %s\n", ack.ResponseDescription)
}

func resolve(ctx context.Context, merchants store.MerchantStore, id int64) (*merchant.Merchant, error) {
	if id != 0 {
		return merchants.FindByID(ctx, id)
	}
	return merchants.Default(ctx)
}
