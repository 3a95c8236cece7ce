// =============================================================================
// Simland HDX Scraper - Dataset Builder
// =============================================================================
//
// The builder turns the folded metadata of one dataset into a Dataset:
//
//   1. Mandatory fields are checked; a missing one fails the dataset.
//   2. The organization name is resolved to a catalog id; an unknown
//      organization is recorded in the error collector and the dataset is
//      dropped.
//   3. Locations, tags and the time period are derived from their fields.
//   4. Resource groups are turned into resources. Service endpoints are
//      skipped, flat files are downloaded and attached as uploads.
//
// A dataset is still returned when some of its resources fail; the failures
// are recorded in the collector as one message for the dataset.
//
// =============================================================================

package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simland/hdx-scraper-simland/internal/errorsonexit"
	"github.com/simland/hdx-scraper-simland/internal/metadata"
	"github.com/simland/hdx-scraper-simland/internal/validation"
)

// ErrUnknownDataset is returned by Build when there is no metadata for a name.
var ErrUnknownDataset = errors.New("unknown dataset")

// Downloader fetches a remote file and returns its local path.
type Downloader interface {
	DownloadFile(ctx context.Context, url, filename string) (string, error)
}

// Builder builds datasets from metadata.
type Builder struct {
	opts       Options
	downloader Downloader
	errors     *errorsonexit.Collector
	logger     zerolog.Logger

	// ReviewMode replaces every location with the review placeholder.
	ReviewMode bool
}

// NewBuilder creates a Builder.
//
// PARAMETERS:
//   - opts: The lookup tables, usually DefaultOptions().
//   - downloader: Fetches resources whose format is in opts.FetchFormats.
//   - errs: Receives non-fatal errors.
//   - logger: The logger.
func NewBuilder(opts Options, downloader Downloader, errs *errorsonexit.Collector, logger zerolog.Logger) *Builder {
	return &Builder{
		opts:       opts,
		downloader: downloader,
		errors:     errs,
		logger:     logger.With().Str("component", "builder").Logger(),
	}
}

// Build builds the dataset name from fields.
//
// RETURNS:
//   - The dataset, or nil when it was dropped (unknown organization).
//   - An error when the dataset cannot be built at all.
func (b *Builder) Build(ctx context.Context, name string, fields *metadata.Fields) (*Dataset, error) {
	if fields == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}

	if problems := validation.Check(name, fields, validation.Mandatory); len(problems) > 0 {
		errs := make([]error, len(problems))
		for i, p := range problems {
			errs[i] = p
		}
		return nil, fmt.Errorf("dataset %s: %w", name, errors.Join(errs...))
	}

	logger := b.logger.With().Str("dataset", name).Logger()

	ds := &Dataset{
		Name:          name,
		Title:         fields.Value("title"),
		Notes:         fields.Value("notes"),
		DatasetSource: fields.Value("dataset_source"),
		Methodology:   fields.Value("methodology"),
		Caveats:       fields.Value("caveats"),
		LicenseTitle:  fields.Value("license_title"),
		Maintainer:    b.opts.Maintainer,
		Subnational:   true,
	}
	if ds.Methodology == "Other" {
		ds.MethodologyOther = fields.Value("methodology_other")
	}

	ds.OrganizationName = fields.Value("organization")
	orgID, ok := b.opts.Organizations[ds.OrganizationName]
	if !ok {
		b.errors.Addf("Could not find organization for %s", name)
		logger.Warn().Str("organization", ds.OrganizationName).Msg("unknown organization")
		return nil, nil
	}
	ds.Organization = orgID

	ds.UpdateFrequency = fields.Value("data_update_frequency")

	if b.ReviewMode {
		ds.Locations = []string{b.opts.ReviewLocation}
	} else {
		ds.Locations = NormalizeLocations(fields.Value("groups"), b.opts.LocationAliases)
	}

	ds.Tags = b.tags(name, fields, logger)

	period, err := periodFromFields(fields, b.opts.DefaultReferenceYear)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	ds.TimePeriod = period

	if level := fields.Value("cod_level"); level != "" {
		ds.CODLevel = level
	}

	var failures []string
	for _, group := range metadata.ResourceGroups(fields) {
		res, keep, err := b.resource(ctx, group, logger)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", group.Key, err))
			if name := strings.TrimSpace(group.Get("name")); name != "" {
				ds.FailedResources = append(ds.FailedResources, name)
			}
			continue
		}
		if keep {
			ds.Resources = append(ds.Resources, res)
		}
	}
	if len(failures) > 0 {
		b.errors.Addf("Dataset: %s resources could not be added. Error: %s", name, strings.Join(failures, "; "))
	}

	logger.Debug().
		Int("resources", len(ds.Resources)).
		Strs("locations", ds.Locations).
		Strs("tags", ds.Tags).
		Msg("dataset built")

	return ds, nil
}

// tags uses the tags field when present, otherwise the theme table.
func (b *Builder) tags(name string, fields *metadata.Fields, logger zerolog.Logger) []string {
	if fields.Has("tags") {
		return SplitTags(fields.Values("tags"))
	}
	tags, ok := ThemeTagsFor(name, b.opts.Themes)
	if !ok {
		logger.Debug().Msg("no tags field and no theme matches")
	}
	return tags
}

// resource turns one group into a Resource. keep is false for skipped formats.
func (b *Builder) resource(ctx context.Context, g *metadata.ResourceGroup, logger zerolog.Logger) (Resource, bool, error) {
	format := strings.TrimSpace(g.Get("format"))
	if FormatIn(format, b.opts.SkipFormats) {
		logger.Debug().Str("resource", g.Key).Str("format", format).Msg("skipping resource")
		return Resource{}, false, nil
	}

	for _, attr := range g.Repeated {
		logger.Warn().Str("resource", g.Key).Str("attribute", attr).Msg("attribute repeated, using last value")
	}

	res := Resource{
		Name:        strings.TrimSpace(g.Get("name")),
		Description: g.Get("description"),
		Format:      format,
		URL:         strings.TrimSpace(g.Get("url")),
	}
	for _, attr := range g.Attributes() {
		switch attr {
		case "name", "description", "format", "url":
			continue
		}
		if res.Extra == nil {
			res.Extra = make(map[string]string)
		}
		res.Extra[attr] = g.Get(attr)
	}

	switch {
	case res.Name == "":
		return Resource{}, false, errors.New("resource has no name")
	case res.Format == "":
		return Resource{}, false, errors.New("resource has no format")
	case res.URL == "":
		return Resource{}, false, errors.New("resource has no url")
	}

	if !FormatIn(format, b.opts.FetchFormats) {
		return res, true, nil
	}

	if b.downloader == nil {
		return Resource{}, false, errors.New("no downloader configured")
	}
	path, err := b.downloader.DownloadFile(ctx, res.URL, res.Name)
	if err != nil {
		return Resource{}, false, err
	}
	res.URL = ""
	res.FilePath = path
	return res, true, nil
}
