package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akmatori/incidentwatch/internal/config"
	"github.com/akmatori/incidentwatch/internal/database"
	"github.com/akmatori/incidentwatch/internal/handlers"
	"github.com/akmatori/incidentwatch/internal/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "incidentwatch",
	Short:         "Detect operational incidents in Slack threads",
	Long:          `incidentwatch watches Slack channels, classifies conversation threads and records incidents for review.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := godotenv.Load(); err != nil {
		// Environment variables alone are fine.
		slog.Debug("no .env file loaded", "error", err)
	}
	handlers.Version = version

	if err := rootCmd.Execute(); err != nil {
		slog.Error("incidentwatch failed", "error", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, initializes logging and opens the store.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := logging.ParseLevel(cfg.LogLevel)
	logging.Init(cfg.LogFormat, level)

	gormLevel := logger.Warn
	if level <= slog.LevelDebug {
		gormLevel = logger.Info
	}
	db, err := database.Connect(cfg.DatabaseURL, gormLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
