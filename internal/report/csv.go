// Package report renders batch results and run summaries as CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/lucerohealth/psiflow/internal/batch"
)

// Writer renders classification results. With Debug set, each row gains a
// Debug_Info column carrying the evaluation evidence as JSON.
type Writer struct {
	Debug bool
}

var resultHeader = []string{
	"EncounterID", "PSI", "Status", "Rationale",
	"Age", "MS_DRG", "Principal_DX", "ATYPE", "LOS",
}

// WriteResults writes one CSV row per (encounter, indicator) result. Rows
// that errored report a Status of "Error" with the failure in the Rationale
// column.
func (w *Writer) WriteResults(out io.Writer, results []batch.Result) error {
	cw := csv.NewWriter(out)

	header := resultHeader
	if w.Debug {
		header = append(append([]string{}, resultHeader...), "Debug_Info")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, res := range results {
		row, err := w.resultRow(res)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write result row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func (w *Writer) resultRow(res batch.Result) ([]string, error) {
	encID := res.EncounterID
	if encID == "" {
		encID = fmt.Sprintf("Row_%d", res.RowNum)
	}

	status := "Error"
	rationale := ""
	if res.Err != nil {
		rationale = res.Err.Error()
	} else {
		status = string(res.Classification.Status)
		rationale = strings.Join(res.Classification.Rationale, " | ")
	}

	var age, msdrg, principal, atype, los string
	if res.Record != nil {
		age = strconv.Itoa(res.Record.Age)
		msdrg = res.Record.MSDRG
		principal = res.Record.PrincipalDx
		if res.Record.AdmissionType != nil {
			atype = strconv.Itoa(*res.Record.AdmissionType)
		}
		if res.Record.LengthOfStay != nil {
			los = strconv.FormatFloat(*res.Record.LengthOfStay, 'f', -1, 64)
		}
	}

	row := []string{encID, res.Indicator, status, rationale, age, msdrg, principal, atype, los}
	if w.Debug {
		debug := ""
		if res.Err == nil && len(res.Classification.Evidence) > 0 {
			b, err := json.Marshal(res.Classification.Evidence)
			if err != nil {
				return nil, fmt.Errorf("marshal evidence for %s/%s: %w", encID, res.Indicator, err)
			}
			debug = string(b)
		}
		row = append(row, debug)
	}
	return row, nil
}

// WriteSummary writes per-indicator totals and the inclusions-per-thousand
// rate for a completed run.
func WriteSummary(out io.Writer, s *batch.Summary) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"PSI", "Inclusions", "Exclusions", "Errors", "Rate_Per_1000"}); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}

	names := make([]string, 0, len(s.ByIndicator))
	for name := range s.ByIndicator {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		is := s.ByIndicator[name]
		row := []string{
			name,
			strconv.Itoa(is.Inclusions),
			strconv.Itoa(is.Exclusions),
			strconv.Itoa(is.Errors),
			strconv.FormatFloat(is.RatePer1000, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
