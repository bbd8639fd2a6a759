package batch

import (
	"context"
	"testing"

	"github.com/lucerohealth/psiflow/internal/ingest"
	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/engine"
	"github.com/lucerohealth/psiflow/internal/psi/mapper"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

func testEngine() *engine.Engine {
	return engine.New(codeset.NewRegistry(map[string][]string{
		codeset.Surgical:       {"001"},
		codeset.RetainedItemDx: {"T81500A"},
	}))
}

func sliceSource(rows []mapper.RawRow) Source {
	return func(fn ingest.RowFunc) error {
		for i, row := range rows {
			if err := fn(i+1, row); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestRunClassifiesEveryRow(t *testing.T) {
	rows := []mapper.RawRow{
		{"EncounterID": "E1", "Age": "50", "MS-DRG": "001", "DX1": "K5790", "DX2": "T81500A", "POA2": "N"},
		{"EncounterID": "E2", "Age": "50", "MS-DRG": "001", "DX1": "K5790"},
		{"EncounterID": "E3", "Age": "12", "MS-DRG": "001", "DX1": "K5790"},
	}

	runner := NewRunner(testEngine(), Config{Workers: 2, QueueSize: 4}, nil, nil)
	results, summary, err := runner.Run(context.Background(), sliceSource(rows), []string{"PSI_05"})
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Results come back ordered by row regardless of worker scheduling.
	for i, res := range results {
		if res.RowNum != i+1 {
			t.Fatalf("results out of order: %+v", results)
		}
	}
	if results[0].Classification.Status != model.StatusInclusion {
		t.Errorf("E1 should be an inclusion: %v", results[0].Classification.Rationale)
	}
	if results[1].Classification.Status != model.StatusExclusion {
		t.Errorf("E2 should be an exclusion")
	}
	if results[2].Classification.Rationale[0] != "Age exclusion: 12 < 18" {
		t.Errorf("E3 rationale = %v", results[2].Classification.Rationale)
	}

	is := summary.ByIndicator["PSI_05"]
	if is.Inclusions != 1 || is.Exclusions != 2 || is.Errors != 0 {
		t.Fatalf("summary = %+v", is)
	}
	if summary.RunID == "" {
		t.Fatal("summary missing run ID")
	}
}

func TestRunRejectedRowBecomesErrorResult(t *testing.T) {
	rows := []mapper.RawRow{
		{"Age": "50"}, // no identifier
		{"EncounterID": "E2", "Age": "50", "MS-DRG": "001", "DX1": "K5790"},
	}

	runner := NewRunner(testEngine(), Config{Workers: 1, QueueSize: 2}, nil, nil)
	results, summary, err := runner.Run(context.Background(), sliceSource(rows), []string{"PSI_05"})
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil || results[0].Classification != nil {
		t.Fatalf("rejected row should carry an error result: %+v", results[0])
	}
	if summary.RowsRejected != 1 || summary.Errors != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunUnknownIndicatorFailsFast(t *testing.T) {
	runner := NewRunner(testEngine(), Config{}, nil, nil)
	_, _, err := runner.Run(context.Background(), sliceSource(nil), []string{"PSI_99"})
	if err == nil {
		t.Fatal("expected error for unknown indicator")
	}
}

func TestSummaryRatePer1000(t *testing.T) {
	rows := []mapper.RawRow{
		{"EncounterID": "E1", "Age": "50", "MS-DRG": "001", "DX1": "K5790", "DX2": "T81500A", "POA2": "N"},
		{"EncounterID": "E2", "Age": "50", "MS-DRG": "001", "DX1": "K5790"},
		{"EncounterID": "E3", "Age": "50", "MS-DRG": "001", "DX1": "K5790"},
		{"EncounterID": "E4", "Age": "50", "MS-DRG": "001", "DX1": "K5790"},
	}

	runner := NewRunner(testEngine(), Config{Workers: 2, QueueSize: 8}, nil, nil)
	_, summary, err := runner.Run(context.Background(), sliceSource(rows), []string{"PSI_05"})
	if err != nil {
		t.Fatal(err)
	}
	if got := summary.ByIndicator["PSI_05"].RatePer1000; got != 250 {
		t.Fatalf("rate = %v, want 250", got)
	}
}
