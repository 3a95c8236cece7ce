package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	"github.com/rs/zerolog"

	"github.com/simland/hdx-scraper-simland/internal/dataset"
	"github.com/simland/hdx-scraper-simland/pkg/utils"
)

// DescriptorFile is the name of the descriptor inside a package folder.
const DescriptorFile = "datapackage.json"

var (
	invalidNameChars = regexp.MustCompile(`[^-a-z0-9.]+`)
	dotRuns          = regexp.MustCompile(`\.{2,}`)
	dashRuns         = regexp.MustCompile(`-{2,}`)
)

// DataPackage writes each dataset as a Frictionless data package under Dir:
//
//	<Dir>/<dataset name>/datapackage.json
//	<Dir>/<dataset name>/<uploaded files>
//
// The full catalog form is kept in the descriptor under the "hdx" key.
type DataPackage struct {
	Dir     string
	Options dataset.Options
	logger  zerolog.Logger
}

// NewDataPackage creates a DataPackage publisher writing below dir.
func NewDataPackage(dir string, opts dataset.Options, logger zerolog.Logger) *DataPackage {
	return &DataPackage{
		Dir:     dir,
		Options: opts,
		logger:  logger.With().Str("component", "datapackage").Logger(),
	}
}

// Publish implements Publisher.
func (p *DataPackage) Publish(ctx context.Context, ds *dataset.Dataset, opts PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(ds.Resources) == 0 {
		return fmt.Errorf("dataset %s has no resources to package", ds.Name)
	}

	dir := filepath.Join(p.Dir, PackageName(ds.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create package folder: %w", err)
	}

	hdx := ds.CatalogDict(opts.Static, p.Options)
	if opts.UpdatedByScript != "" {
		hdx["updated_by_script"] = opts.UpdatedByScript
	}
	if opts.Batch != "" {
		hdx["batch"] = opts.Batch
	}

	resources := make([]any, 0, len(ds.Resources))
	used := make(map[string]int)
	var hdxResources []any
	for _, res := range ds.Resources {
		base := PackageName(res.Name)
		used[base]++
		name := base
		if used[base] > 1 {
			name = fmt.Sprintf("%s-%d", base, used[base])
		}

		descriptor := map[string]any{
			"name":   name,
			"title":  res.Name,
			"format": strings.ToLower(res.Format),
		}
		if res.Description != "" {
			descriptor["description"] = res.Description
		}

		if res.IsUpload() {
			file := filepath.Base(res.FilePath)
			if err := utils.CopyFile(res.FilePath, filepath.Join(dir, file)); err != nil {
				return fmt.Errorf("resource %s: %w", res.Name, err)
			}
			descriptor["path"] = file
		} else {
			descriptor["path"] = res.URL
		}
		resources = append(resources, descriptor)
		hdxResources = append(hdxResources, res.CatalogDict())
	}
	hdx["resources"] = hdxResources

	descriptor := map[string]any{
		"name":        PackageName(ds.Name),
		"title":       ds.Title,
		"description": ds.Notes,
		"profile":     "data-package",
		"created":     time.Now().UTC().Format(time.RFC3339),
		"resources":   resources,
		"hdx":         hdx,
	}
	if len(ds.Tags) > 0 {
		keywords := make([]any, 0, len(ds.Tags))
		for _, tag := range ds.Tags {
			keywords = append(keywords, tag)
		}
		descriptor["keywords"] = keywords
	}
	if ds.OrganizationName != "" {
		descriptor["contributors"] = []any{
			map[string]any{"title": ds.OrganizationName, "role": "publisher"},
		}
	}

	pkg, err := datapackage.New(descriptor, dir, validator.InMemoryLoader())
	if err != nil {
		return fmt.Errorf("invalid data package for %s: %w", ds.Name, err)
	}

	path := filepath.Join(dir, DescriptorFile)
	if err := pkg.SaveDescriptor(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	p.logger.Info().Str("dataset", ds.Name).Str("path", path).Int("resources", len(resources)).Msg("data package written")
	return nil
}

// PackageName lower-cases name and replaces characters that are not valid in
// a data package or resource name. The result is a single path element:
// separators and dot runs are replaced, so it never leaves the output folder.
//
// EXAMPLE:
//
//	Input:  "../../Sld_Adm1.csv"
//	Output: "sld-adm1.csv"
func PackageName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	name = dotRuns.ReplaceAllString(name, "-")
	name = dashRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		return "unnamed"
	}
	return name
}
