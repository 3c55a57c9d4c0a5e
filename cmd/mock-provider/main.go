package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/handler"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/middleware"
)

type mockConfig struct {
	Port        int    `env:"MOCK_PORT" envDefault:"8081"`
	ServerKey   string `env:"MIDTRANS_SERVER_KEY" envDefault:"SB-Mid-server-simulated"`
	CallbackURL string `env:"WEBHOOK_CALLBACK_URL" envDefault:"http://app:8080/api/v1/webhooks/midtrans"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[mockConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	p := newProvider(cfg.ServerKey, cfg.CallbackURL, &http.Client{Timeout: 10 * time.Second})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handler.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	p.routes(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("mock provider started", "addr", addr, "callback_url", cfg.CallbackURL, "server_key_is_default", cfg.ServerKey == gateway.SimulatedServerKey)
	if err := http.ListenAndServe(addr, middleware.Tracing(middleware.Logging(mux))); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
