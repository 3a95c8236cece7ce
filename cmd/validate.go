// =============================================================================
// Simland HDX Scraper - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   simland validate [--dataset name] [--strict]
//
// The validate command fetches the metadata table and checks every dataset
// without downloading resources or publishing anything. It is meant to be
// run after editing the metadata table.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simland/hdx-scraper-simland/internal/dataset"
	"github.com/simland/hdx-scraper-simland/internal/errorsonexit"
	"github.com/simland/hdx-scraper-simland/internal/retriever"
	"github.com/simland/hdx-scraper-simland/internal/scraper"
	"github.com/simland/hdx-scraper-simland/internal/validation"
)

// strict treats warnings as errors.
var strict bool

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the metadata table without publishing",
	Long: `The validate command fetches the metadata table and reports, per dataset:
  - missing mandatory fields (errors)
  - unknown organizations, bad dates and incomplete resources
  - empty values and resources without any file or link (warnings)

The command fails when at least one error is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringArrayVar(
		&onlyDatasets,
		"dataset",
		nil,
		"Validate only this dataset (repeatable)",
	)

	validateCmd.Flags().BoolVar(
		&strict,
		"strict",
		false,
		"Treat warnings as errors",
	)
}

func runValidate(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	rt := retriever.New(retriever.Options{
		TempDir:     cfg.DownloadDir(),
		SavedDir:    cfg.SavedDir,
		FallbackDir: cfg.FallbackDir,
		UserAgent:   cfg.UserAgent,
	}, nil, logger)

	s := scraper.New(scraper.Options{
		MetadataURL: cfg.MetadataURL,
		Only:        onlyDatasets,
	}, rt, nil, nil, nil, errorsonexit.New(), logger)

	opts := dataset.DefaultOptions()
	v := validation.NewValidator(validation.ValidationOptions{
		Organizations:         opts.OrganizationNames(),
		SkipFormats:           opts.SkipFormats,
		TreatWarningsAsErrors: strict,
	})

	result, err := s.Validate(ctx, v)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range result.Errors {
		fmt.Fprintln(out, e.Error())
	}
	fmt.Fprintf(out, "\nDatasets: %d, Errors: %d, Warnings: %d\n",
		result.DatasetsValidated, result.ErrorCount, result.WarningCount)

	if !result.IsValid {
		return fmt.Errorf("metadata table has %d error(s)", result.ErrorCount)
	}
	return nil
}
