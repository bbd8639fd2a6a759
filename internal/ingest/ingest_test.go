package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lucerohealth/psiflow/internal/psi/mapper"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppendixCSV(t *testing.T) {
	path := writeFile(t, "appendix.csv",
		"SURGI2R_CODES,SEPTI2D,FOREIID\n"+
			"001,A41.9,T81.500A\n"+
			"002,R65.21,\n"+
			"216,,\n")

	reg, err := LoadAppendix(path)
	if err != nil {
		t.Fatal(err)
	}

	if got := reg.Get("SURGI2R_CODES").Len(); got != 3 {
		t.Fatalf("SURGI2R has %d codes, want 3", got)
	}
	// Headers without the suffix land under their canonical name.
	if !reg.Get("SEPTI2D_CODES").Contains("A419") {
		t.Fatal("SEPTI2D column not canonicalized")
	}
	if !reg.Get("FOREIID_CODES").Contains("T81500A") {
		t.Fatal("codes should be normalized on admission")
	}
}

func TestLoadAppendixBOMAndEmptyColumn(t *testing.T) {
	path := writeFile(t, "appendix.csv",
		"\xEF\xBB\xBFSURGI2R_CODES,MEDIC2R_CODES\n001,\n")

	reg, err := LoadAppendix(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reg.Has("SURGI2R_CODES") {
		t.Fatal("BOM should be stripped from the first header")
	}
	// A present-but-empty column registers as a known empty set.
	if !reg.Has("MEDIC2R_CODES") {
		t.Fatal("empty column should still register")
	}
	if reg.Get("MEDIC2R_CODES").Len() != 0 {
		t.Fatal("empty column should hold no codes")
	}
}

func TestLoadAppendixUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "appendix.txt", "whatever")
	if _, err := LoadAppendix(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestStreamEncountersCSV(t *testing.T) {
	path := writeFile(t, "encounters.csv",
		"EncounterID,Age,MS-DRG,DX1,POA1\n"+
			"E1,50,001,K57.90,Y\n"+
			"E2,61,002,A41.9,N\n")

	var rows []mapper.RawRow
	err := StreamEncounters(path, func(rowNum int, row mapper.RawRow) error {
		if rowNum != len(rows)+1 {
			t.Fatalf("rowNum = %d out of sequence", rowNum)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0]["EncounterID"] != "E1" || rows[0]["DX1"] != "K57.90" {
		t.Fatalf("row 1 = %v", rows[0])
	}
	if rows[1]["POA1"] != "N" {
		t.Fatalf("row 2 = %v", rows[1])
	}
}

func TestStreamEncountersRaggedRow(t *testing.T) {
	// Short rows simply omit the trailing columns.
	path := writeFile(t, "encounters.csv",
		"EncounterID,Age,MS-DRG\nE1,50\n")

	err := StreamEncounters(path, func(rowNum int, row mapper.RawRow) error {
		if _, ok := row["MS-DRG"]; ok {
			t.Fatalf("short row should not carry MS-DRG: %v", row)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStreamEncountersEmptyFile(t *testing.T) {
	path := writeFile(t, "encounters.csv", "")
	if err := StreamEncounters(path, func(int, mapper.RawRow) error { return nil }); err == nil {
		t.Fatal("expected error for empty file")
	}
}
