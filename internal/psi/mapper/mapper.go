// Package mapper normalizes raw tabular encounter rows into the domain model.
// Input rows carry up to 30 diagnosis slots (DX1..DX30 with POA1..POA30) and
// 20 procedure slots (Proc1..Proc20 with optional Proc{n}_Date and
// Proc{n}_Time). Malformed field values degrade to safe defaults; only a
// missing encounter identifier is a structural error.
package mapper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

const (
	maxDiagnosisSlots = 30
	maxProcedureSlots = 20
)

// ErrNoIdentifier is returned when a row carries no encounter identifier.
var ErrNoIdentifier = errors.New("row has no encounter identifier")

// RawRow is one header-keyed row from a CSV or XLSX sheet.
type RawRow map[string]string

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
}

var timeLayouts = []string{
	"15:04:05",
	"15:04",
}

// RecordNormalizer converts raw rows into EncounterRecords.
type RecordNormalizer struct{}

// NewRecordNormalizer returns a normalizer with the default slot layout.
func NewRecordNormalizer() *RecordNormalizer {
	return &RecordNormalizer{}
}

// Normalize maps one raw row to an EncounterRecord. Field-level anomalies
// (unparseable dates, out-of-vocabulary POA values, non-numeric ages) are
// absorbed into defaults rather than failing the row.
func (n *RecordNormalizer) Normalize(row RawRow) (*model.EncounterRecord, error) {
	encID := strings.TrimSpace(fieldAny(row, "EncounterID", "Encounter_ID"))
	if encID == "" {
		return nil, ErrNoIdentifier
	}

	rec := &model.EncounterRecord{
		EncounterID: encID,
		Age:         parseInt(row["Age"], 0),
		MSDRG:       codeset.NormalizeCode(row["MS-DRG"]),
		PrincipalDx: codeset.NormalizeCode(row["PrincipalDX"]),
	}
	rec.AdmissionType = parseIntPtr(row["ATYPE"])
	rec.DRG = parseIntPtr(row["DRG"])
	rec.LengthOfStay = parseFloatPtr(fieldAny(row, "length_of_stay", "Length_of_stay"))
	rec.AdmitDate = parseDate(fieldAny(row, "admission_date", "Admission_Date"))

	rec.Diagnoses = n.extractDiagnoses(row)
	rec.Procedures = n.extractProcedures(row)
	return rec, nil
}

func (n *RecordNormalizer) extractDiagnoses(row RawRow) []model.DiagnosisEntry {
	var out []model.DiagnosisEntry
	for i := 1; i <= maxDiagnosisSlots; i++ {
		code := codeset.NormalizeCode(row[fmt.Sprintf("DX%d", i)])
		if code == "" {
			continue
		}
		position := model.PositionSecondary
		if i == 1 {
			position = model.PositionPrincipal
		}
		out = append(out, model.DiagnosisEntry{
			Code:     code,
			POA:      model.ParsePOAFlag(row[fmt.Sprintf("POA%d", i)]),
			Position: position,
			Seq:      i,
		})
	}
	return out
}

func (n *RecordNormalizer) extractProcedures(row RawRow) []model.ProcedureEntry {
	var out []model.ProcedureEntry
	for i := 1; i <= maxProcedureSlots; i++ {
		code := codeset.NormalizeCode(row[fmt.Sprintf("Proc%d", i)])
		if code == "" {
			continue
		}
		entry := model.ProcedureEntry{Code: code, Seq: i}
		date := strings.TrimSpace(row[fmt.Sprintf("Proc%d_Date", i)])
		if date != "" {
			clock := strings.TrimSpace(row[fmt.Sprintf("Proc%d_Time", i)])
			entry.Date = parseDateTime(date, clock)
		}
		out = append(out, entry)
	}
	return out
}

// fieldAny returns the first non-empty value among the named columns.
func fieldAny(row RawRow, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v
		}
	}
	return ""
}

func parseInt(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func parseIntPtr(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	// Tolerate spreadsheet exports that render integers as "3.0".
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		v := int(f)
		return &v
	}
	return nil
}

func parseFloatPtr(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// parseDateTime combines a date field with an optional clock field. An
// unparseable clock falls back to the bare date; an unparseable date yields
// an undated procedure.
func parseDateTime(date, clock string) *time.Time {
	if clock != "" {
		for _, dl := range dateLayouts {
			for _, tl := range timeLayouts {
				if t, err := time.Parse(dl+" "+tl, date+" "+clock); err == nil {
					return &t
				}
			}
		}
	}
	return parseDate(date)
}
