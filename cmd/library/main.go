package main

import (
	"context"
	stdLog "log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Astemirdum/library-admin/library/app"
	"github.com/Astemirdum/library-admin/library/config"
	"github.com/Astemirdum/library-admin/library/migrations"
	"github.com/Astemirdum/library-admin/pkg/logger"
	"github.com/Astemirdum/library-admin/pkg/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdLog.Fatal("load envs from .env ", zap.Error(err))
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var mock bool
	options := func() []config.Option {
		opts := []config.Option{
			config.WithLogLevel(zapcore.DebugLevel),
			config.WithWriteTimeout(time.Minute),
		}
		if mock {
			opts = append(opts, config.WithMockMode(true))
		}
		return opts
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the library admin http api",
		Run: func(cmd *cobra.Command, args []string) {
			app.Run(config.NewConfig(options()...))
		},
	}
	root := &cobra.Command{
		Use:          "library",
		Short:        "Library administration backend",
		SilenceUsage: true,
		Run:          serve.Run,
	}
	root.PersistentFlags().BoolVar(&mock, "mock", false, "use the in-process backend with sample data")
	root.AddCommand(serve, migrateCmd(options))
	return root
}

func migrateCmd(options func() []config.Option) *cobra.Command {
	run := func(up bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig(options()...)
			mode, err := cfg.Mode()
			if err != nil {
				return err
			}
			if mode == config.ModeMock {
				return errors.New("migrations need BACKEND_URL and BACKEND_KEY")
			}
			log := logger.NewLogger(cfg.Log, "migrate")
			pool, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, nil)
			if err != nil {
				return err
			}
			defer pool.Close()
			if up {
				err = postgres.MigrateUp(pool, migrations.MigrationFiles)
			} else {
				err = postgres.MigrateDown(pool, migrations.MigrationFiles)
			}
			if err != nil {
				return err
			}
			log.Info("migrations applied", zap.Bool("up", up))
			return nil
		}
	}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all migrations", RunE: run(true)},
		&cobra.Command{Use: "down", Short: "Roll back the last migration", RunE: run(false)},
	)
	return cmd
}
