package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prdagent/prdagent/pkg/config"
	"github.com/prdagent/prdagent/pkg/utils"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "prdagent",
		Short: "Collaborative PRD discussion backend with streaming AI assistants",
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.InitLogger()
			logger := utils.GetLogger()

			if _, err := config.EnsureDefaultConfig(); err != nil {
				logger.Warn("Failed to write default config", "error", err)
			}
			cfg, configFile, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Info("Config loaded", "file", configFile)

			database, err := gorm.Open(sqlite.Open(cfg.DatabasePath()), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return fmt.Errorf("open database %s: %w", cfg.DatabasePath(), err)
			}

			server, err := NewServer(cfg, database)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Start(ctx)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("prdagent", version)
		},
	}
}
