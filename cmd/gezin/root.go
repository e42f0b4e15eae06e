package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/gezin/internal/config"
	"github.com/dukerupert/gezin/internal/logging"
)

// Global flag values.
var (
	flagConfigFile string
	flagEnvFile    string
)

var (
	v      = config.New()
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "gezin",
	Short:         "Gezin is a family organizer API",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := config.LoadDotEnv(flagEnvFile); err != nil {
			return err
		}
		loaded, err := config.Load(v, flagConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigFile, "config", "", "config file (default: ./gezin.yaml when present)")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("backend", config.BackendFile, "storage backend: file, sqlite or postgres")
	pf.String("data-dir", "./data", "directory holding one JSON document per collection (file backend)")
	pf.String("sqlite-path", "gezin.db", "database file (sqlite backend)")
	pf.String("database-url", "", "PostgreSQL connection string (postgres backend)")

	mustBind(config.KeyLogLevel, pf.Lookup("log-level"))
	mustBind(config.KeyLogFormat, pf.Lookup("log-format"))
	mustBind(config.KeyBackend, pf.Lookup("backend"))
	mustBind(config.KeyDataDir, pf.Lookup("data-dir"))
	mustBind(config.KeySQLitePath, pf.Lookup("sqlite-path"))
	mustBind(config.KeyDatabaseURL, pf.Lookup("database-url"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
}
