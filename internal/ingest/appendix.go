// Package ingest reads the two input artifacts: the appendix workbook that
// defines the ICD and DRG code sets, and the encounter table to classify.
// Both are accepted as XLSX or CSV.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
)

// LoadAppendix reads a column-oriented appendix file and builds the code set
// registry. Each column header names a code set; the cells below it are that
// set's codes. Unrecognized columns still load under their own name so site
// extensions pass through.
func LoadAppendix(path string) (*codeset.Registry, error) {
	var (
		columns map[string][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		columns, err = appendixColumnsXLSX(path)
	case ".csv":
		columns, err = appendixColumnsCSV(path)
	default:
		return nil, fmt.Errorf("unsupported appendix format %q (want .xlsx or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	sets := make(map[string][]string, len(columns))
	for header, codes := range columns {
		name := codeset.CanonicalName(header)
		if name == "" {
			continue
		}
		sets[name] = append(sets[name], codes...)
	}
	return codeset.NewRegistry(sets), nil
}

func appendixColumnsXLSX(path string) (map[string][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open appendix workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("appendix workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read appendix sheet %s: %w", sheets[0], err)
	}
	return columnsFromRows(rows), nil
}

func appendixColumnsCSV(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open appendix file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bomStrippingReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read appendix csv: %w", err)
	}
	return columnsFromRows(rows), nil
}

// columnsFromRows pivots a header-plus-data grid into per-column value lists,
// skipping blank cells.
func columnsFromRows(rows [][]string) map[string][]string {
	out := make(map[string][]string)
	if len(rows) == 0 {
		return out
	}
	headers := rows[0]
	for _, row := range rows[1:] {
		for i, cell := range row {
			if i >= len(headers) {
				break
			}
			header := strings.TrimSpace(headers[i])
			cell = strings.TrimSpace(cell)
			if header == "" || cell == "" {
				continue
			}
			out[header] = append(out[header], cell)
		}
	}
	// Ensure empty columns still register as known, empty sets.
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := out[h]; !ok {
			out[h] = nil
		}
	}
	return out
}
