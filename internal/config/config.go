package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port, BaseURL, CallbackBaseURL string }
type DBCfg struct{ DSN string }
type RedisCfg struct{ Addr string }

// DarajaCfg selects the upstream environment and where cached tokens live.
type DarajaCfg struct {
	Environment string // "sandbox" or "production"
	TokenStore  string // "memory" or "redis"
}

type Cfg struct {
	App    AppCfg
	DB     DBCfg
	Redis  RedisCfg
	Daraja DarajaCfg
}

// CallbackURLs are the absolute URLs handed to Daraja per operation. They are
// computed once here and passed down; nothing else in the tree builds URLs.
type CallbackURLs struct {
	STKCallback     string
	C2BValidation   string
	C2BConfirmation string
	B2CResult       string
	B2CTimeout      string
	B2BResult       string
	B2BTimeout      string
	StatusResult    string
	StatusTimeout   string
	BalanceResult   string
	BalanceTimeout  string
	ReversalResult  string
	ReversalTimeout string
}

// Callbacks derives the callback URL set from the callback base URL. The C2B
// validation/confirmation paths must not contain the word "mpesa": Daraja's
// register-url filter rejects them.
func (c Cfg) Callbacks() CallbackURLs {
	base := strings.TrimSuffix(c.App.CallbackBaseURL, "/")
	return CallbackURLs{
		STKCallback:     base + "/mpesa/stk/callback",
		C2BValidation:   base + "/callback/c2b/validation",
		C2BConfirmation: base + "/callback/c2b/confirmation",
		B2CResult:       base + "/b2c/result",
		B2CTimeout:      base + "/b2c/timeout",
		B2BResult:       base + "/b2b/result",
		B2BTimeout:      base + "/b2b/timeout",
		StatusResult:    base + "/transaction-status/result",
		StatusTimeout:   base + "/transaction-status/timeout",
		BalanceResult:   base + "/balance/result",
		BalanceTimeout:  base + "/balance/timeout",
		ReversalResult:  base + "/reversal/result",
		ReversalTimeout: base + "/reversal/timeout",
	}
}

func Load() Cfg {
	// .env is optional; deployments normally set process env directly.
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("MPESA_ENVIRONMENT", "sandbox")
	viper.SetDefault("MPESA_TOKEN_STORE", "memory")
	viper.SetDefault("TZ", "Africa/Nairobi")

	if tz := viper.GetString("TZ"); tz != "" {
		os.Setenv("TZ", tz)
	}

	cfg := Cfg{
		App: AppCfg{
			Env:             viper.GetString("APP_ENV"),
			Port:            viper.GetString("APP_PORT"),
			BaseURL:         strings.TrimSuffix(viper.GetString("APP_BASE_URL"), "/"),
			CallbackBaseURL: strings.TrimSuffix(viper.GetString("CALLBACK_BASE_URL"), "/"),
		},
		DB:    DBCfg{DSN: viper.GetString("DB_DSN")},
		Redis: RedisCfg{Addr: viper.GetString("REDIS_ADDR")},
		Daraja: DarajaCfg{
			Environment: viper.GetString("MPESA_ENVIRONMENT"),
			TokenStore:  viper.GetString("MPESA_TOKEN_STORE"),
		},
	}
	if cfg.App.CallbackBaseURL == "" {
		cfg.App.CallbackBaseURL = cfg.App.BaseURL
	}

	// Fail fast on required settings.
	if cfg.DB.DSN == "" {
		log.Fatal().Msg("DB_DSN is required")
	}
	if cfg.App.CallbackBaseURL == "" {
		log.Fatal().Msg("APP_BASE_URL or CALLBACK_BASE_URL is required")
	}
	if cfg.Daraja.TokenStore == "redis" && cfg.Redis.Addr == "" {
		log.Fatal().Msg("REDIS_ADDR is required when MPESA_TOKEN_STORE=redis")
	}
	return cfg
}
