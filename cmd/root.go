// =============================================================================
// Simland HDX Scraper - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (simland)
//   ├── runCmd      (simland run)
//   ├── validateCmd (simland validate)
//   ├── statusCmd   (simland status)
//   └── versionCmd  (simland version)
//
// The root command owns the global flags and builds the configuration and
// the logger shared by the subcommands.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/simland/hdx-scraper-simland/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "simland",
	Short: "Simland HDX Scraper - publish Simland datasets to HDX",
	Long: `The Simland HDX scraper reads a metadata table describing the Simland
datasets (one Dataset/Field/Value row per attribute), builds a catalog
dataset with its resources for every dataset in it and publishes them to
the Humanitarian Data Exchange.

Example Usage:
  simland run                      # Publish every dataset
  simland run --review-mode        # Publish to the review site with placeholder locations
  simland run --save               # Keep a copy of every download in saved_data
  simland run --use-saved          # Replay saved downloads instead of fetching
  simland run --output-dir ./out   # Write local data packages instead of uploading
  simland validate                 # Check the metadata table only`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// setup loads the configuration and builds the logger. The returned closer
// releases the log file.
func setup() (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	logger, closer, err := newLogger(cfg.LogLevel, cfg.LogFile, verbose)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger writes human-readable logs to stderr and, when logFile is set,
// JSON logs to that file.
func newLogger(level, logFile string, verbose bool) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var closer io.Closer = nopCloser{}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = zerolog.MultiLevelWriter(w, f)
		closer = f
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return logger, closer, nil
}
