package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"contesthub/internal/config"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:          "contesthub",
	Short:        "Contest aggregation and reminder service",
	Long:         "Collects upcoming programming contests from LeetCode, CodeChef and Codeforces, links discussion videos and sends bookmark reminders over Telegram.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "./configs", "Directory holding config.yaml")
}

// setup loads the configuration and builds the JSON logger at its level.
func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"queue_backend": cfg.QueueBackend,
		"http_addr":     cfg.HTTPAddr,
	}).Info("Configuration loaded successfully")
	return cfg, log, nil
}
