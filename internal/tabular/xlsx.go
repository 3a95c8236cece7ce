package tabular

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/simland/hdx-scraper-simland/internal/types"
)

// =============================================================================
// XLSX READER
// =============================================================================
// Some metadata tables are maintained as workbooks rather than CSV exports.
// The first row of the sheet holds the headers, exactly like the CSV form.

// XLSXReader iterates the rows of one worksheet.
type XLSXReader struct {
	file       *excelize.File
	rows       *excelize.Rows
	headers    []string
	currentRow types.Row
	rowNumber  int
	err        error
}

// OpenXLSX opens a workbook and positions the reader after the header row.
//
// PARAMETERS:
//   - path: The path to the XLSX file.
//   - sheet: The worksheet name; empty selects the first sheet.
//
// RETURNS:
//   - A pointer to the XLSXReader.
//   - An error if the file cannot be opened or the sheet does not exist.
func OpenXLSX(path, sheet string) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			f.Close()
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet '%s': %w", sheet, err)
	}

	p := &XLSXReader{
		file:    f,
		rows:    rows,
		headers: []string{},
	}

	if rows.Next() {
		p.rowNumber++
		cols, err := rows.Columns()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("error reading header row: %w", err)
		}
		p.headers = cleanHeaders(cols)
	}

	return p, nil
}

// Next advances to the next non-empty row.
func (p *XLSXReader) Next() bool {
	for p.err == nil && p.rows.Next() {
		p.rowNumber++

		cols, err := p.rows.Columns()
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.rowNumber, err)
			return false
		}
		if len(cols) == 0 || isRowEmpty(cols) {
			continue
		}

		p.currentRow = types.NewRow(p.headers, trimValues(cols), p.rowNumber)
		return true
	}
	if p.err == nil {
		p.err = p.rows.Error()
	}
	return false
}

// Row returns the current row.
func (p *XLSXReader) Row() types.Row {
	return p.currentRow
}

// Headers returns the header row of the sheet.
func (p *XLSXReader) Headers() []string {
	return p.headers
}

// Err returns any error that occurred while iterating.
func (p *XLSXReader) Err() error {
	return p.err
}

// Close releases the row iterator and the workbook.
func (p *XLSXReader) Close() error {
	if err := p.rows.Close(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
