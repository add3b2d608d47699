package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/api"
	"github.com/npezzotti/go-echoes/internal/config"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/friends"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/journal"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/profile"
	"github.com/npezzotti/go-echoes/internal/server"
	"github.com/npezzotti/go-echoes/internal/stats"
	"github.com/npezzotti/go-echoes/internal/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix         = "ECHOES"
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	shutdownTimeout   = 10 * time.Second
)

var envKeyReplacer = strings.NewReplacer("-", "_")

var rootCmd = &cobra.Command{
	Use:   "echoes",
	Short: "Runs the echoes server",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env file is fine
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer logger.Sync()

		return serve(cfg, logger.Sugar())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(config.AddrFlag, "localhost:8000", "server address")
	flags.String(config.StoreFlag, config.StorePostgres, "document store backend (postgres, mongo or memory)")
	flags.String(config.DSNFlag, "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "postgres connection string")
	flags.String(config.MongoURIFlag, "mongodb://localhost:27017", "mongo connection uri")
	flags.String(config.MongoDatabaseFlag, "echoes", "mongo database name")
	flags.String(config.RedisAddrFlag, "", "redis address for cross-instance notifications, empty for in-process")
	flags.String(config.SigningKeyFlag, defaultSigningKey, "base64 encoded signing key")
	flags.StringSlice(config.AllowedOriginsFlag, nil, "comma-separated list of allowed origins for CORS")
	flags.String(config.LogLevelFlag, "info", "log level (debug, info, warn, error)")
	flags.Bool(config.DevFlag, false, "human readable development logging")
	flags.Float64(config.AuthRPSFlag, 1, "credential requests per second allowed per client address")
	flags.Int(config.AuthBurstFlag, 5, "credential request burst per client address")
	flags.Duration(config.RotationCheckIntervalFlag, time.Hour, "how often to look for identifiers due for rotation, 0 disables")
	flags.Duration(config.RotationPeriodFlag, 168*time.Hour, "age at which opted in identifiers are rotated")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(migrateCmd)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	return zc.Build()
}

// openStore connects to the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config) (database.EchoesRepository, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return database.NewMemoryEchoesRepository(), nil
	case config.StoreMongo:
		repo, err := database.NewMongoEchoesRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	default:
		repo, err := database.NewPgEchoesRepository(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}
}

func newBroker(cfg *config.Config, logger *zap.SugaredLogger) (live.Broker, error) {
	if cfg.RedisAddr == "" {
		return live.NewLocalBroker(), nil
	}

	return live.NewRedisBroker(live.NewRedisPool(cfg.RedisAddr), logger)
}

func serve(cfg *config.Config, logger *zap.SugaredLogger) error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStart()

	db, err := openStore(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorw("db close", "error", err)
		}
	}()

	broker, err := newBroker(cfg, logger)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logger.Errorw("broker close", "error", err)
		}
	}()

	ids := identity.NewManager(db, broker, logger)
	accounts := account.NewService(db, ids, broker, account.NewLogNotifier(logger), cfg.SigningKey, logger)
	f := feed.NewFeed(db, ids, broker, logger)
	fr := friends.NewStore(db, ids, broker, logger)
	j := journal.NewJournal(db, ids, f, broker, logger)
	agg := profile.NewAggregator(db, logger)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	hub := server.NewHub(logger, server.Services{
		Accounts: accounts,
		Feed:     f,
		Journal:  j,
		Friends:  fr,
	}, statsUpdater)

	srv := api.NewEchoesApp(mux, logger, hub, db, statsUpdater, api.Services{
		Accounts: accounts,
		Identity: ids,
		Friends:  fr,
		Feed:     f,
		Journal:  j,
		Profile:  agg,
	}, cfg)

	if _, err := web.NewShell(mux, logger, web.Services{
		Accounts: accounts,
		Identity: ids,
		Friends:  fr,
		Feed:     f,
		Journal:  j,
		Profile:  agg,
	}, srv.Limiter()); err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	go hub.Run()

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go identity.NewScheduler(ids, cfg.RotationCheckInterval, cfg.RotationPeriod, logger).Run(schedCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infow("received signal", "signal", sig.String())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server", "error", err)
		}
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info("shutting down hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	stopScheduler()
	logger.Info("shutdown complete")
	return nil
}
