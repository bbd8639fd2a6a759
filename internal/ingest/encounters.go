package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lucerohealth/psiflow/internal/psi/mapper"
)

// csvBufferSize keeps large exports from thrashing the reader.
const csvBufferSize = 256 * 1024

// RowFunc receives each encounter row with its 1-based data row number.
// Returning an error stops the stream.
type RowFunc func(rowNum int, row mapper.RawRow) error

// StreamEncounters reads the encounter table row by row, keyed by the header
// row, and invokes fn for each data row. CSV files stream; XLSX sheets load
// through the workbook reader.
func StreamEncounters(path string, fn RowFunc) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return streamEncountersXLSX(path, fn)
	case ".csv":
		return streamEncountersCSV(path, fn)
	default:
		return fmt.Errorf("unsupported encounter format %q (want .xlsx or .csv)", filepath.Ext(path))
	}
}

func streamEncountersCSV(path string, fn RowFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open encounter file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bomStrippingReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if err == io.EOF {
		return fmt.Errorf("encounter file %s is empty", path)
	}
	if err != nil {
		return fmt.Errorf("read encounter header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	rowNum := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read encounter row %d: %w", rowNum+1, err)
		}
		rowNum++
		if err := fn(rowNum, zipRow(headers, record)); err != nil {
			return err
		}
	}
}

func streamEncountersXLSX(path string, fn RowFunc) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open encounter workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("encounter workbook %s has no sheets", path)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("read encounter sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	var headers []string
	rowNum := 0
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read encounter row: %w", err)
		}
		if headers == nil {
			headers = record
			for i := range headers {
				headers[i] = strings.TrimSpace(headers[i])
			}
			continue
		}
		rowNum++
		if err := fn(rowNum, zipRow(headers, record)); err != nil {
			return err
		}
	}
	if headers == nil {
		return fmt.Errorf("encounter workbook %s is empty", path)
	}
	return rows.Error()
}

func zipRow(headers, record []string) mapper.RawRow {
	row := make(mapper.RawRow, len(headers))
	for i, h := range headers {
		if h == "" || i >= len(record) {
			continue
		}
		row[h] = record[i]
	}
	return row
}

// bomStrippingReader wraps f in a buffered reader and discards a leading
// UTF-8 byte order mark when present.
func bomStrippingReader(f *os.File) *bufio.Reader {
	br := bufio.NewReaderSize(f, csvBufferSize)
	if bom, err := br.Peek(3); err == nil && len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}
	return br
}
