package engine

import (
	"testing"
	"time"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

func mkSet(codes ...string) codeset.Set {
	reg := codeset.NewRegistry(map[string][]string{"S_CODES": codes})
	return reg.Get("S_CODES")
}

func TestDaysBetweenTruncatesTowardZero(t *testing.T) {
	a := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 2, 7, 0, 0, 0, time.UTC)
	if got := daysBetween(a, b); got != 0 {
		t.Fatalf("23h apart = %d days, want 0", got)
	}
	if got := daysBetween(a, a.AddDate(0, 0, 3)); got != 3 {
		t.Fatalf("3 days apart = %d, want 3", got)
	}
}

func TestEarliestAndLatestDatedSkipUndated(t *testing.T) {
	procs := []model.ProcedureEntry{
		{Code: "A1", Seq: 1},
		datedProc("A1", 2, day(5)),
		datedProc("A1", 3, day(2)),
	}
	set := mkSet("A1")

	earliest, ok := earliestDated(procs, set)
	if !ok || !earliest.Date.Equal(day(2)) {
		t.Fatalf("earliestDated = %+v, ok=%v", earliest, ok)
	}
	latest, ok := latestDated(procs, set)
	if !ok || !latest.Date.Equal(day(5)) {
		t.Fatalf("latestDated = %+v, ok=%v", latest, ok)
	}

	if _, ok := earliestDated([]model.ProcedureEntry{{Code: "A1", Seq: 1}}, set); ok {
		t.Fatal("expected no dated procedure")
	}
}

func TestTreatmentPrecedesORSameDayExcludes(t *testing.T) {
	or := mkSet("OR1")
	treat := mkSet("TX1")
	procs := []model.ProcedureEntry{
		datedProc("OR1", 1, day(2)),
		datedProc("TX1", 2, day(2)),
	}
	reason, excluded := treatmentPrecedesOR(procs, or, treat)
	if !excluded {
		t.Fatal("same-day treatment should exclude")
	}
	if reason != "Treatment procedure TX1 occurs before OR procedure" {
		t.Fatalf("unexpected reason %q", reason)
	}

	procs[1] = datedProc("TX1", 2, day(3))
	if _, excluded := treatmentPrecedesOR(procs, or, treat); excluded {
		t.Fatal("later treatment should not exclude")
	}
}

func TestSurgeryDelayIndeterminateWithoutAdmitDate(t *testing.T) {
	rec := &model.EncounterRecord{
		Procedures: []model.ProcedureEntry{datedProc("OR1", 1, day(12))},
	}
	if _, ok := surgeryDelayDays(rec, mkSet("OR1")); ok {
		t.Fatal("missing admit date should be indeterminate")
	}

	admit := day(0)
	rec.AdmitDate = &admit
	delay, ok := surgeryDelayDays(rec, mkSet("OR1"))
	if !ok || delay != 12 {
		t.Fatalf("delay = %d, ok=%v, want 12", delay, ok)
	}
}

func TestReclosurePrecedesIndexVariants(t *testing.T) {
	open := mkSet("OP1")
	other := mkSet("OT1")
	reclosure := mkSet("RC1")

	procs := []model.ProcedureEntry{
		datedProc("OP1", 1, day(4)),
		datedProc("RC1", 2, day(4)),
	}
	reason, excluded := reclosurePrecedesIndex(procs, open, other, reclosure)
	if !excluded || reason != "Reclosure occurs before or same day as open abdominal surgery" {
		t.Fatalf("excluded=%v reason=%q", excluded, reason)
	}

	procs = []model.ProcedureEntry{
		datedProc("OT1", 1, day(4)),
		datedProc("RC1", 2, day(3)),
	}
	reason, excluded = reclosurePrecedesIndex(procs, open, other, reclosure)
	if !excluded || reason != "Reclosure occurs before or same day as other abdominal surgery" {
		t.Fatalf("excluded=%v reason=%q", excluded, reason)
	}

	// Undated reclosure is indeterminate.
	procs = []model.ProcedureEntry{
		datedProc("OP1", 1, day(4)),
		{Code: "RC1", Seq: 2},
	}
	if _, excluded := reclosurePrecedesIndex(procs, open, other, reclosure); excluded {
		t.Fatal("undated reclosure should not exclude")
	}
}
