// =============================================================================
// Simland HDX Scraper - Scraper Module
// =============================================================================
//
// This module drives a run. It orchestrates the whole pipeline:
//
// RUN PIPELINE:
//   1. Fetch the metadata table and index it by dataset
//   2. Open a progress batch (new, resumed or started at a given dataset)
//   3. For each remaining dataset, in sorted order:
//      a. Skip it when configured
//      b. Build the dataset from its metadata
//      c. Publish it
//      d. Record the outcome and move the checkpoint
//   4. Complete the batch
//
// ERRORS:
//   - A broken metadata table or a dataset that cannot be built (missing
//     mandatory field, unparseable period) stops the run. The checkpoint
//     stays on that dataset so the next run resumes there.
//   - Unknown organizations, resource failures and rejected uploads go to
//     the error collector and the run continues.
//
// CONCURRENCY:
//   Datasets are processed one at a time.
//
// =============================================================================

package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/simland/hdx-scraper-simland/internal/catalog"
	"github.com/simland/hdx-scraper-simland/internal/dataset"
	"github.com/simland/hdx-scraper-simland/internal/errorsonexit"
	"github.com/simland/hdx-scraper-simland/internal/metadata"
	"github.com/simland/hdx-scraper-simland/internal/progress"
	"github.com/simland/hdx-scraper-simland/internal/validation"
	"github.com/simland/hdx-scraper-simland/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single dataset.
type Result struct {
	// Dataset is the dataset identifier.
	Dataset string

	// Status is one of the progress status values.
	Status string

	// Resources is the number of resources published.
	Resources int

	// Message explains a skip or failure.
	Message string

	// Duration is the time taken to process the dataset.
	Duration time.Duration
}

// Summary contains the results of a run.
type Summary struct {
	BatchID   string
	StartTime time.Time
	EndTime   time.Time

	// Total is the number of datasets in the metadata table, Start the index
	// the run resumed at.
	Total   int
	Start   int
	Resumed bool

	// SkippedRows counts metadata rows without a dataset or field name.
	SkippedRows int

	Published int
	Skipped   int
	Failed    int

	Results []Result
}

func (s *Summary) add(r Result) {
	switch r.Status {
	case progress.StatusPublished:
		s.Published++
	case progress.StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// Processing converts the summary for the run summary file.
func (s *Summary) Processing(reviewMode bool) utils.ProcessingSummary {
	ps := utils.ProcessingSummary{
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		BatchID:    s.BatchID,
		ReviewMode: reviewMode,
		Total:      s.Total,
		Published:  s.Published,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
	}
	for _, r := range s.Results {
		ps.Datasets = append(ps.Datasets, utils.DatasetInfo{
			Name:      r.Dataset,
			Status:    r.Status,
			Resources: r.Resources,
			Message:   r.Message,
			Duration:  r.Duration,
		})
	}
	return ps
}

// =============================================================================
// SCRAPER STRUCTURE
// =============================================================================

// Options configures a run.
type Options struct {
	// MetadataURL is the location of the metadata table.
	MetadataURL string

	// Only restricts the run to these datasets. Empty means all.
	Only []string

	// SkipDatasets are never published.
	SkipDatasets []string

	// WhereToStart is passed to progress.DB.Begin.
	WhereToStart string

	// UpdatedByScript and Static are passed to the publisher.
	UpdatedByScript string
	Static          map[string]any
}

// Scraper runs the pipeline.
type Scraper struct {
	opts      Options
	source    metadata.TableSource
	builder   *dataset.Builder
	publisher catalog.Publisher
	progress  *progress.DB
	errors    *errorsonexit.Collector
	logger    zerolog.Logger
}

// New creates a Scraper.
//
// PARAMETERS:
//   - opts: The run options.
//   - source: Fetches the metadata table.
//   - builder: Builds datasets.
//   - publisher: Publishes datasets. May be nil for Validate-only use.
//   - db: Stores progress. May be nil for Validate-only use.
//   - errs: Receives non-fatal errors.
//   - logger: The logger.
func New(opts Options, source metadata.TableSource, builder *dataset.Builder, publisher catalog.Publisher,
	db *progress.DB, errs *errorsonexit.Collector, logger zerolog.Logger) *Scraper {
	return &Scraper{
		opts:      opts,
		source:    source,
		builder:   builder,
		publisher: publisher,
		progress:  db,
		errors:    errs,
		logger:    logger,
	}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run processes every dataset of the metadata table.
//
// RETURNS:
//   - The run summary, also when the run stopped early.
//   - An error when the run stopped early.
func (s *Scraper) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartTime: time.Now()}
	defer func() { summary.EndTime = time.Now() }()

	idx, err := metadata.Fetch(ctx, s.source, s.opts.MetadataURL, s.opts.Only)
	if err != nil {
		return summary, err
	}

	names := idx.Names()
	summary.Total = len(names)
	summary.SkippedRows = idx.Skipped
	if idx.Skipped > 0 {
		s.logger.Warn().Int("rows", idx.Skipped).Msg("metadata rows without dataset or field were ignored")
	}
	s.logger.Info().Int("datasets", len(names)).Msg("Number of datasets to upload")

	batch, err := s.progress.Begin(ctx, names, s.opts.WhereToStart)
	if err != nil {
		return summary, fmt.Errorf("failed to open progress batch: %w", err)
	}
	summary.BatchID = batch.ID.String()
	summary.Start = batch.Start
	summary.Resumed = batch.Resumed
	if batch.Resumed && batch.Start < len(names) {
		s.logger.Info().Str("dataset", names[batch.Start]).Str("batch", summary.BatchID).Msg("resuming")
	}

	for _, name := range names[batch.Start:] {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := batch.Checkpoint(ctx, name); err != nil {
			return summary, fmt.Errorf("failed to store checkpoint: %w", err)
		}

		result, err := s.processDataset(ctx, name, idx.Get(name), summary.BatchID)
		summary.add(result)
		if rerr := batch.Record(ctx, name, result.Status, result.Message); rerr != nil {
			s.logger.Warn().Err(rerr).Str("dataset", name).Msg("failed to record outcome")
		}
		if err != nil {
			return summary, err
		}
	}

	if err := batch.Complete(ctx); err != nil {
		return summary, fmt.Errorf("failed to complete batch: %w", err)
	}
	return summary, nil
}

// processDataset builds and publishes one dataset. A returned error stops
// the run.
func (s *Scraper) processDataset(ctx context.Context, name string, fields *metadata.Fields, batchID string) (Result, error) {
	start := time.Now()
	result := Result{Dataset: name}
	logger := s.logger.With().Str("dataset", name).Logger()

	if s.skip(name) {
		logger.Info().Msg("skipping configured dataset")
		result.Status = progress.StatusSkipped
		result.Message = "configured skip"
		result.Duration = time.Since(start)
		return result, nil
	}

	ds, err := s.builder.Build(ctx, name, fields)
	if err != nil {
		result.Status = progress.StatusFailed
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	if ds == nil {
		result.Status = progress.StatusFailed
		result.Message = "unknown organization"
		result.Duration = time.Since(start)
		return result, nil
	}

	err = s.publisher.Publish(ctx, ds, catalog.PublishOptions{
		Batch:           batchID,
		UpdatedByScript: s.opts.UpdatedByScript,
		Static:          s.opts.Static,
	})
	if err != nil {
		logger.Error().Err(err).Msg("upload failed")
		s.errors.Addf("Could not upload %s: %v", name, err)
		result.Status = progress.StatusFailed
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Status = progress.StatusPublished
	result.Resources = len(ds.Resources)
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Scraper) skip(name string) bool {
	for _, skip := range s.opts.SkipDatasets {
		if skip == name {
			return true
		}
	}
	return false
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate fetches the metadata table and checks every dataset without
// downloading resources or publishing.
func (s *Scraper) Validate(ctx context.Context, v *validation.Validator) (*validation.ValidationResult, error) {
	idx, err := metadata.Fetch(ctx, s.source, s.opts.MetadataURL, s.opts.Only)
	if err != nil {
		return nil, err
	}
	return v.ValidateAll(idx), nil
}
