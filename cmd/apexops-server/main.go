package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apexops/dashboard/internal/config"
	"github.com/apexops/dashboard/internal/logging"
	"github.com/apexops/dashboard/internal/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configPath string
	port       int
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "apexops-server",
		Short:         "ApexOps dashboard backend: REST API and realtime channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "config.yaml", "Path to config file")
	pf.IntVar(&flags.port, "port", 0, "Override server port")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(newMigrateCmd(flags), newVersionCmd())
	return root
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Store.DatabaseURL == "" {
				return errors.New("migrate: store.database_url is not set")
			}
			log := logging.Component(logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr), "migrate")

			pg, err := store.Connect(cmd.Context(), cfg.Store.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if flags.port > 0 {
		cfg.Server.Port = flags.port
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

