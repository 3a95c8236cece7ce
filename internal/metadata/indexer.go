// =============================================================================
// Simland HDX Scraper - Metadata Indexer
// =============================================================================
//
// The metadata table is a long-format sheet with one attribute per row:
//
//   Dataset     | Field              | Value
//   cod-ps-sld  | title              | Simland - Subnational Population ...
//   cod-ps-sld  | resource_1_format  | csv
//
// Index folds it into one Fields map per dataset identifier and returns the
// identifiers sorted, which gives runs a stable order to checkpoint against.
//
// =============================================================================

package metadata

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/simland/hdx-scraper-simland/internal/tabular"
	"github.com/simland/hdx-scraper-simland/internal/types"
)

// Required column names of the metadata table.
const (
	ColumnDataset = "Dataset"
	ColumnField   = "Field"
	ColumnValue   = "Value"
)

// ConfigError reports a metadata table that cannot be indexed. It aborts the
// whole run.
type ConfigError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "invalid metadata table"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Index is the folded metadata table.
type Index struct {
	datasets map[string]*Fields
	names    []string

	// Rows is the number of data rows read, Skipped the rows without a
	// dataset identifier or field name.
	Rows    int
	Skipped int
}

// Build folds rows into an Index. When only is non-empty, rows for other
// datasets are ignored.
//
// RETURNS:
//   - The Index.
//   - A *ConfigError when a required column is missing, the table has no data
//     rows, or the reader fails.
func Build(rows tabular.Reader, only []string) (*Index, error) {
	cols, err := columnIndexes(rows.Headers())
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(only))
	for _, name := range only {
		keep[strings.TrimSpace(name)] = true
	}

	idx := &Index{datasets: make(map[string]*Fields)}

	for rows.Next() {
		idx.Rows++
		mr := toMetadataRow(rows.Row(), cols)
		if mr.Dataset == "" || mr.Field == "" {
			idx.Skipped++
			continue
		}
		if len(keep) > 0 && !keep[mr.Dataset] {
			continue
		}
		idx.add(mr)
	}
	if err := rows.Err(); err != nil {
		return nil, &ConfigError{Reason: "failed to read rows", Err: err}
	}
	if idx.Rows == 0 {
		return nil, &ConfigError{Reason: "table has no data rows"}
	}

	sort.Strings(idx.names)
	return idx, nil
}

func (idx *Index) add(mr types.MetadataRow) {
	fields, ok := idx.datasets[mr.Dataset]
	if !ok {
		fields = NewFields()
		idx.datasets[mr.Dataset] = fields
		idx.names = append(idx.names, mr.Dataset)
	}
	fields.Add(mr.Field, mr.Value)
}

// columnIndexes locates the required columns. Header matching ignores case.
func columnIndexes(headers []string) ([3]int, error) {
	var cols [3]int
	var missing []string
	for i, want := range []string{ColumnDataset, ColumnField, ColumnValue} {
		cols[i] = -1
		for j, h := range headers {
			if strings.EqualFold(h, want) {
				cols[i] = j
				break
			}
		}
		if cols[i] < 0 {
			missing = append(missing, want)
		}
	}
	if len(headers) == 0 {
		return cols, &ConfigError{Reason: "table is empty"}
	}
	if len(missing) > 0 {
		return cols, &ConfigError{Reason: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))}
	}
	return cols, nil
}

func toMetadataRow(row types.Row, cols [3]int) types.MetadataRow {
	at := func(i int) string {
		if i < len(row.Values) {
			return row.Values[i]
		}
		return ""
	}
	return types.MetadataRow{
		Dataset: at(cols[0]),
		Field:   at(cols[1]),
		Value:   at(cols[2]),
	}
}

// Names returns the dataset identifiers sorted and without duplicates.
func (idx *Index) Names() []string {
	out := make([]string, len(idx.names))
	copy(out, idx.names)
	return out
}

// Get returns the fields of name, or nil when the dataset is unknown.
func (idx *Index) Get(name string) *Fields {
	return idx.datasets[name]
}

// Len returns the number of datasets.
func (idx *Index) Len() int {
	return len(idx.names)
}

// TableSource fetches a table by URL.
type TableSource interface {
	GetTabularRows(ctx context.Context, url, filename, format string) (tabular.Reader, error)
}

// Fetch downloads the metadata table at url and indexes it.
func Fetch(ctx context.Context, source TableSource, url string, only []string) (*Index, error) {
	filename := "metadata.csv"
	format := tabular.FormatFromPath(url)
	if format == tabular.FormatXLSX {
		filename = "metadata.xlsx"
	}

	rows, err := source.GetTabularRows(ctx, url, filename, format)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer rows.Close()

	idx, err := Build(rows, only)
	if err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.Source = url
		}
		return nil, err
	}
	return idx, nil
}
