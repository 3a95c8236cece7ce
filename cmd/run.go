// =============================================================================
// Simland HDX Scraper - Run Command
// =============================================================================
//
// This file defines the 'run' command, the main command of the scraper. It
// wires the pipeline together and publishes every dataset of the metadata
// table.
//
// COMMAND USAGE:
//   simland run [flags]
//
// FLAGS:
//   --review-mode     : Publish to the review site with placeholder locations
//   --save            : Keep a copy of every download in saved_dir
//   --use-saved       : Replay downloads from saved_dir instead of fetching
//   --dataset         : Process only the named dataset (repeatable)
//   --output-dir      : Write local data packages instead of uploading
//   --where-to-start  : Dataset to start from, or RESET (env: WHERETOSTART)
//
// PROCESSING PIPELINE:
//   1. Load configuration and the static dataset template
//   2. Fetch and index the metadata table
//   3. Open (or resume) a progress batch
//   4. For each dataset, in name order:
//      a. Build the dataset and fetch its file resources
//      b. Publish it to HDX (or to a local data package)
//      c. Record the outcome
//   5. Write the error log and the run summary
//   6. Report collected errors; a non-empty report fails the command
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/simland/hdx-scraper-simland/internal/catalog"
	"github.com/simland/hdx-scraper-simland/internal/config"
	"github.com/simland/hdx-scraper-simland/internal/dataset"
	"github.com/simland/hdx-scraper-simland/internal/errorsonexit"
	"github.com/simland/hdx-scraper-simland/internal/progress"
	"github.com/simland/hdx-scraper-simland/internal/retriever"
	"github.com/simland/hdx-scraper-simland/internal/scraper"
	"github.com/simland/hdx-scraper-simland/pkg/utils"
)

// staleDownloadAge is how long staged downloads are kept in temp_dir.
const staleDownloadAge = 7 * 24 * time.Hour

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// reviewMode publishes to the review site with placeholder locations.
var reviewMode bool

// saveData keeps a copy of every download.
var saveData bool

// useSaved replays saved downloads.
var useSaved bool

// onlyDatasets restricts the run to the named datasets.
var onlyDatasets []string

// outputDir selects the local data package publisher.
var outputDir string

// whereToStart selects the first dataset of the run.
var whereToStart string

// =============================================================================
// RUN COMMAND DEFINITION
// =============================================================================

// runCmd represents the 'run' command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the Simland datasets and publish them to HDX",
	Long: `The run command reads the metadata table, builds one catalog dataset per
dataset name and publishes it together with its resources.

Datasets are processed in name order. Progress is stored in the progress
database so an interrupted run resumes at the dataset it stopped on:
  --where-to-start=<dataset>  start at that dataset
  --where-to-start=RESET      start a new run from the first dataset

Failures that concern a single dataset (unknown organization, a resource
that cannot be added, a rejected upload) are collected and reported at the
end of the run; the command then exits with a non-zero status. A dataset
whose mandatory fields are missing stops the run immediately.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runScraper(cmd.Context())
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// init registers the run command with the root command and sets up flags.
func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(
		&reviewMode,
		"review-mode",
		"r",
		false,
		"Publish to the review site and replace locations with the review placeholder",
	)

	runCmd.Flags().BoolVar(
		&saveData,
		"save",
		false,
		"Keep a copy of every download in saved_dir",
	)

	runCmd.Flags().BoolVar(
		&useSaved,
		"use-saved",
		false,
		"Read downloads from saved_dir instead of fetching them",
	)

	runCmd.Flags().StringArrayVar(
		&onlyDatasets,
		"dataset",
		nil,
		"Process only this dataset (repeatable)",
	)

	runCmd.Flags().StringVar(
		&outputDir,
		"output-dir",
		"",
		"Write local data packages to this folder instead of uploading",
	)

	runCmd.Flags().StringVar(
		&whereToStart,
		"where-to-start",
		"",
		"Dataset to start from, or RESET (default: $WHERETOSTART)",
	)

	runCmd.MarkFlagsMutuallyExclusive("save", "use-saved")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runScraper wires the pipeline and runs it.
func runScraper(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	static, err := config.LoadStatic(cfg.DatasetStaticYAML)
	if err != nil {
		return err
	}

	if whereToStart == "" {
		whereToStart = os.Getenv("WHERETOSTART")
	}

	fm := utils.NewFileManager(cfg.TempDir, cfg.SavedDir, outputDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}
	cleanDownloads(cfg, logger)

	// =========================================================================
	// STEP 2: WIRE THE PIPELINE
	// =========================================================================

	errs := errorsonexit.New()

	rt := retriever.New(retriever.Options{
		TempDir:     cfg.DownloadDir(),
		SavedDir:    cfg.SavedDir,
		FallbackDir: cfg.FallbackDir,
		Save:        saveData,
		UseSaved:    useSaved,
		UserAgent:   cfg.UserAgent,
	}, nil, logger)

	opts := dataset.DefaultOptions()
	opts.DefaultReferenceYear = cfg.DefaultReferenceYear

	builder := dataset.NewBuilder(opts, rt, errs, logger)
	builder.ReviewMode = reviewMode

	publisher, err := newPublisher(cfg, opts, rt, logger)
	if err != nil {
		return err
	}

	db, err := progress.Open(cfg.ProgressDB)
	if err != nil {
		return fmt.Errorf("failed to open progress database: %w", err)
	}
	defer db.Close()

	s := scraper.New(scraper.Options{
		MetadataURL:     cfg.MetadataURL,
		Only:            onlyDatasets,
		SkipDatasets:    cfg.SkipDatasets,
		WhereToStart:    whereToStart,
		UpdatedByScript: cfg.UpdatedByScript,
		Static:          static,
	}, rt, builder, publisher, db, errs, logger)

	// =========================================================================
	// STEP 3: RUN
	// =========================================================================

	logger.Info().
		Bool("review_mode", reviewMode).
		Str("site", cfg.SiteURL(reviewMode)).
		Str("metadata_url", cfg.MetadataURL).
		Msg("starting run")

	summary, runErr := s.Run(ctx)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("run stopped")
	}

	// =========================================================================
	// STEP 4: WRITE LOGS
	// =========================================================================

	writeRunLogs(fm, summary, errs, logger)

	logger.Info().
		Int("published", summary.Published).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", summary.EndTime.Sub(summary.StartTime)).
		Msg("run finished")

	// =========================================================================
	// STEP 5: REPORT
	// =========================================================================

	reportErr := errs.Report(logger)
	if runErr != nil {
		return errors.Join(runErr, reportErr)
	}
	return reportErr
}

// cleanDownloads removes stale staged downloads. It never touches the rest
// of temp_dir, which holds the progress database.
func cleanDownloads(cfg *config.Config, logger zerolog.Logger) {
	removed, err := utils.CleanOldFiles(cfg.DownloadDir(), staleDownloadAge)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to clean downloads folder")
		return
	}
	if removed > 0 {
		logger.Debug().Int("files", removed).Msg("removed stale downloads")
	}
}

// newPublisher returns the local data package publisher when --output-dir
// is set and the HDX publisher otherwise.
func newPublisher(cfg *config.Config, opts dataset.Options, rt *retriever.Retriever, logger zerolog.Logger) (catalog.Publisher, error) {
	if outputDir != "" {
		logger.Info().Str("dir", outputDir).Msg("writing local data packages")
		return catalog.NewDataPackage(outputDir, opts, logger), nil
	}
	return catalog.NewHDX(catalog.HDXOptions{
		URL:     cfg.SiteURL(reviewMode),
		APIKey:  cfg.HDXKey,
		Dataset: opts,
	}, rt.Client(), logger)
}

// writeRunLogs writes the error log and the summary into the temp folder.
// Failures are logged and do not change the outcome of the run.
func writeRunLogs(fm *utils.FileManager, summary *scraper.Summary, errs *errorsonexit.Collector, logger zerolog.Logger) {
	now := time.Now()
	var entries []utils.ErrorLogEntry
	for _, msg := range errs.Errors() {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp: now,
			Dataset:   datasetOf(msg),
			Message:   msg,
		})
	}

	if path, err := utils.WriteErrorLog(entries, fm.TempDir); err != nil {
		logger.Warn().Err(err).Msg("failed to write error log")
	} else if path != "" {
		logger.Info().Str("path", path).Msg("error log written")
	}

	if path, err := utils.WriteSummaryLog(summary.Processing(reviewMode), fm.TempDir); err != nil {
		logger.Warn().Err(err).Msg("failed to write summary")
	} else {
		logger.Info().Str("path", path).Msg("summary written")
	}
}

// datasetOf extracts the dataset name from a collected error message.
func datasetOf(msg string) string {
	for _, prefix := range []string{"Dataset: ", "Could not find organization for ", "Could not upload "} {
		if !strings.HasPrefix(msg, prefix) {
			continue
		}
		rest := strings.TrimPrefix(msg, prefix)
		if i := strings.IndexAny(rest, " :"); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	return ""
}
