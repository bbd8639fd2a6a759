// Package model provides the normalized clinical data structures consumed by the
// PSI rule engine: encounter records, diagnosis and procedure entries, and the
// classification result type.
package model

import (
	"strings"
	"time"
)

// POAFlag is the present-on-admission indicator attached to a diagnosis.
// Raw values outside Y/N/U/W normalize to POAUnknown.
type POAFlag string

const (
	POAYes     POAFlag = "Y"
	POANo      POAFlag = "N"
	POAUnable  POAFlag = "U"
	POAExempt  POAFlag = "W"
	POAUnknown POAFlag = ""
)

// ParsePOAFlag normalizes a raw POA value. Anything outside the documented
// vocabulary, including blanks, maps to POAUnknown.
func ParsePOAFlag(raw string) POAFlag {
	switch POAFlag(strings.ToUpper(strings.TrimSpace(raw))) {
	case POAYes:
		return POAYes
	case POANo:
		return POANo
	case POAUnable:
		return POAUnable
	case POAExempt:
		return POAExempt
	default:
		return POAUnknown
	}
}

// ProtectsFromNumerator reports whether this flag shields the diagnosis from
// being counted as hospital-acquired. Only an explicit Y protects; N, U, W and
// Unknown all count as non-POA for numerator purposes.
func (f POAFlag) ProtectsFromNumerator() bool {
	return f == POAYes
}

// String renders the flag for rationale messages.
func (f POAFlag) String() string {
	if f == POAUnknown {
		return "Unknown"
	}
	return string(f)
}

// DxPosition marks a diagnosis slot as principal or secondary.
type DxPosition string

const (
	PositionPrincipal DxPosition = "PRINCIPAL"
	PositionSecondary DxPosition = "SECONDARY"
)

// DiagnosisEntry is one coded diagnosis on an encounter. Position derives
// purely from slot index (slot 1 = principal), not clinical adjudication.
type DiagnosisEntry struct {
	Code     string
	POA      POAFlag
	Position DxPosition
	Seq      int
}

// IsSecondary reports whether the entry occupies a secondary slot.
func (d DiagnosisEntry) IsSecondary() bool {
	return d.Position == PositionSecondary
}

// ProcedureEntry is one coded procedure on an encounter. Date is nil whenever
// the source date is missing or unparsable; rules must treat "has code" and
// "has dated code" as distinct predicates.
type ProcedureEntry struct {
	Code string
	Date *time.Time
	Seq  int
}

// Dated reports whether the procedure carries a usable timestamp.
func (p ProcedureEntry) Dated() bool {
	return p.Date != nil
}

// EncounterRecord is the normalized view of one inpatient stay. Built once per
// raw row and immutable thereafter; the engine is evaluated against it once per
// selected indicator.
type EncounterRecord struct {
	EncounterID   string
	Age           int
	MSDRG         string
	PrincipalDx   string
	AdmissionType *int
	DRG           *int
	AdmitDate     *time.Time
	LengthOfStay  *float64
	Diagnoses     []DiagnosisEntry
	Procedures    []ProcedureEntry
}

// SecondaryDiagnoses returns the entries occupying secondary slots, in slot order.
func (r *EncounterRecord) SecondaryDiagnoses() []DiagnosisEntry {
	var out []DiagnosisEntry
	for _, d := range r.Diagnoses {
		if d.IsSecondary() {
			out = append(out, d)
		}
	}
	return out
}

// IsElective reports whether the admission type marks an elective stay (ATYPE 3).
func (r *EncounterRecord) IsElective() bool {
	return r.AdmissionType != nil && *r.AdmissionType == 3
}
