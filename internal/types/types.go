// =============================================================================
// Simland HDX Scraper - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - tabular    (produces rows)
//   - retriever  (hands rows to callers)
//   - metadata   (folds rows into per-dataset fields)
//
// =============================================================================

package types

// =============================================================================
// ROW TYPES
// =============================================================================

// Row is a single record from a tabular source, kept as an ordered
// field -> value mapping. Headers and Values always have the same length.
type Row struct {
	// Headers are the column names in source order.
	Headers []string

	// Values are the cell values, aligned with Headers.
	Values []string

	// Number is the 1-indexed line (or sheet row) the record came from.
	// Useful for error reporting.
	Number int
}

// NewRow builds a Row, padding missing trailing cells with empty strings.
func NewRow(headers, values []string, number int) Row {
	aligned := make([]string, len(headers))
	copy(aligned, values)
	return Row{Headers: headers, Values: aligned, Number: number}
}

// Get returns the value for field and whether the column exists.
func (r Row) Get(field string) (string, bool) {
	for i, h := range r.Headers {
		if h == field {
			return r.Values[i], true
		}
	}
	return "", false
}

// =============================================================================
// METADATA TYPES
// =============================================================================

// MetadataRow is one (Dataset, Field, Value) triple from the metadata table.
type MetadataRow struct {
	// Dataset is the dataset identifier (catalog name).
	Dataset string

	// Field is the attribute name, e.g. "title" or "resource_1_url".
	Field string

	// Value is the attribute value, possibly empty.
	Value string
}
