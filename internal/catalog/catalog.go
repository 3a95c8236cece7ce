// Package catalog publishes built datasets. The HDX publisher talks to the
// CKAN action API of a Humanitarian Data Exchange site; the data package
// publisher writes a local Frictionless data package instead.
package catalog

import (
	"context"

	"github.com/simland/hdx-scraper-simland/internal/dataset"
)

// PublishOptions are the per-run values sent with every dataset.
type PublishOptions struct {
	// Batch groups the updates of one run.
	Batch string

	// UpdatedByScript identifies the scraper on the catalog.
	UpdatedByScript string

	// Static holds template keys merged under the metadata-derived keys.
	Static map[string]any
}

// Publisher creates or updates a dataset in a catalog.
type Publisher interface {
	Publish(ctx context.Context, ds *dataset.Dataset, opts PublishOptions) error
}
