package main

import (
	"context"
	"fmt"

	"github.com/npezzotti/go-echoes/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies schema migrations (postgres) or indexes (mongo) and exits",
	Args:  cobra.NoArgs,
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		db, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		logger.Sugar().Infow("store is up to date", "store", cfg.Store)
		return db.Close()
	},
}
