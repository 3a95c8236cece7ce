package tabular

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/simland/hdx-scraper-simland/internal/types"
)

// =============================================================================
// STREAMING CSV READER
// =============================================================================

// CSVReader provides memory-efficient parsing of CSV sources.
// Instead of loading the entire file into memory, it processes rows one at a time.
type CSVReader struct {
	source     io.ReadCloser
	reader     *csv.Reader
	headers    []string
	currentRow types.Row
	rowNumber  int
	err        error
}

// NewCSVReader wraps source and reads the header row.
//
// PARAMETERS:
//   - source: The CSV byte stream. It is closed by Close.
//   - settings: The reader settings.
//
// RETURNS:
//   - A pointer to the CSVReader, positioned before the first data row.
//   - An error if the header row cannot be read.
func NewCSVReader(source io.ReadCloser, settings Settings) (*CSVReader, error) {
	reader := csv.NewReader(bufio.NewReader(source))
	configureReader(reader, settings)

	p := &CSVReader{
		source: source,
		reader: reader,
	}

	if err := p.readHeaders(); err != nil {
		return nil, err
	}

	return p, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings Settings) {
	switch settings.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Metadata exports are hand-edited spreadsheets; tolerate ragged rows
	// and stray quotes.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
}

// readHeaders reads the single header row.
func (p *CSVReader) readHeaders() error {
	row, err := p.reader.Read()
	if err == io.EOF {
		// An empty file has no columns; callers decide whether that is fatal.
		p.headers = []string{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading header row: %w", err)
	}
	p.rowNumber++
	p.headers = cleanHeaders(row)
	return nil
}

// Next advances to the next row. Returns false when there are no more rows.
func (p *CSVReader) Next() bool {
	for p.err == nil {
		row, err := p.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.rowNumber+1, err)
			return false
		}

		p.rowNumber++

		if isRowEmpty(row) {
			continue
		}

		p.currentRow = types.NewRow(p.headers, trimValues(row), p.rowNumber)
		return true
	}
	return false
}

// Row returns the current row.
func (p *CSVReader) Row() types.Row {
	return p.currentRow
}

// Headers returns the parsed headers.
func (p *CSVReader) Headers() []string {
	return p.headers
}

// RowNumber returns the current row number (1-indexed).
func (p *CSVReader) RowNumber() int {
	return p.rowNumber
}

// Err returns any error that occurred during parsing.
func (p *CSVReader) Err() error {
	return p.err
}

// Close closes the underlying source.
func (p *CSVReader) Close() error {
	return p.source.Close()
}
