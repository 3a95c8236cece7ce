// =============================================================================
// Simland HDX Scraper - Tabular Readers
// =============================================================================
//
// This package turns tabular files into a stream of ordered rows. It is used
// for the metadata table (Dataset, Field, Value) and can read:
//   - CSV files (any single-character delimiter)
//   - XLSX workbooks (one worksheet, via excelize)
//
// Both readers implement the same Reader interface so callers never care
// which format the source was published in.
//
// USAGE:
//   rows, err := tabular.Open(path, "")
//   if err != nil {
//       return err
//   }
//   defer rows.Close()
//
//   for rows.Next() {
//       row := rows.Row()
//       // Process the row...
//   }
//
//   if err := rows.Err(); err != nil {
//       return err
//   }
//
// =============================================================================

package tabular

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/simland/hdx-scraper-simland/internal/types"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned by Open for anything but csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported tabular format")

// Reader is a forward-only cursor over the data rows of a table.
type Reader interface {
	// Headers returns the column names of the table.
	Headers() []string

	// Next advances to the next non-empty row. It returns false at the end
	// of the table or on error.
	Next() bool

	// Row returns the current row.
	Row() types.Row

	// Err returns the first error encountered while reading.
	Err() error

	// Close releases the underlying file.
	Close() error
}

// Settings controls how a CSV file is split into cells.
type Settings struct {
	// Delimiter is the character used to separate fields.
	// Accepts "," (default), "\\t"/"tab", "|"/"pipe", ";"/"semicolon".
	Delimiter string

	// Sheet is the XLSX worksheet to read. Empty means the first sheet.
	Sheet string
}

// DefaultSettings returns comma-separated settings reading the first sheet.
func DefaultSettings() Settings {
	return Settings{Delimiter: ","}
}

// Open opens a tabular file. When format is empty it is inferred from the
// file extension.
//
// PARAMETERS:
//   - path: The path to the file.
//   - format: "csv", "xlsx" or "" to infer.
//
// RETURNS:
//   - A Reader positioned before the first data row.
//   - An error if the file cannot be opened or the format is unknown.
func Open(path, format string) (Reader, error) {
	return OpenWithSettings(path, format, DefaultSettings())
}

// OpenWithSettings is Open with explicit reader settings.
func OpenWithSettings(path, format string, settings Settings) (Reader, error) {
	if format == "" {
		format = FormatFromPath(path)
	}

	switch strings.ToLower(format) {
	case FormatCSV:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		reader, err := NewCSVReader(file, settings)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return reader, nil

	case FormatXLSX:
		return OpenXLSX(path, settings.Sheet)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// FormatFromPath infers the tabular format from a path or URL extension.
// Unknown extensions default to csv.
func FormatFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if i := strings.IndexAny(ext, "?#"); i != -1 {
		ext = ext[:i]
	}
	switch ext {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cleanHeaders trims header names and names blank columns by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if i == 0 {
			// Excel exports often start with a UTF-8 byte order mark.
			header = strings.TrimPrefix(header, "\ufeff")
		}
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}

	return cleaned
}

// trimValues trims whitespace around every cell.
func trimValues(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
