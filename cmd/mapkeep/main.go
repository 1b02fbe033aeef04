package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mapkeep/internal/config"
	"mapkeep/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Identity flags
	gameID int
	mapID  int
	userID int

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mapkeep",
	Short: "mapkeep - local overrides for an interactive map application",
	Long: `mapkeep keeps found locations, tracked categories, notes and presets for an
interactive map application in a local store. It sits between the application and
its server (as a reverse proxy or inside a controlled browser) and answers the
requests that would otherwise store that state remotely.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		zc := zap.NewProductionConfig()
		if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
		if cfg.Logging.Format == "console" {
			zc.Encoding = "console"
		}
		if cfg.Logging.File != "" {
			zc.OutputPaths = []string{cfg.Logging.File}
		}
		lc := cfg.Logging.LoggerConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			lc.Level = "debug"
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Initialize(logger, lc)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mapkeep.yaml", "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Operation timeout for one-shot commands")

	for _, c := range []*cobra.Command{serveCmd, exportCmd, importCmd, clearCmd, showCmd, shareCmd} {
		c.Flags().IntVar(&gameID, "game", 0, "Game id (required)")
		c.Flags().IntVar(&mapID, "map", 0, "Map id (required)")
		c.Flags().IntVar(&userID, "user", 0, "User id (0 means signed out)")
		_ = c.MarkFlagRequired("game")
		_ = c.MarkFlagRequired("map")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
