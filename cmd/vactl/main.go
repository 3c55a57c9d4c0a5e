package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/repository"
)

var Version = "dev"

// cliConfig is the subset of the service configuration the operator
// commands need. Flags override the environment.
type cliConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`
}

type app struct {
	cfg    cliConfig
	logger *slog.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[cliConfig]()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	a := &app{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:           "vactl",
		Short:         "Operator tooling for the Umrah VA gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger = logging.Init("vactl", a.cfg.LogLevel, "development")
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string (default $DATABASE_URL)")

	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(a.sweepCmd())
	rootCmd.AddCommand(a.notificationsCmd())
	rootCmd.AddCommand(a.jobsCmd())
	rootCmd.AddCommand(a.tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required: set DATABASE_URL or --database-url")
	}
	db, err := repository.NewPostgresDB(ctx, a.cfg.DatabaseURL, repository.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return nil, err
	}
	return db, nil
}
