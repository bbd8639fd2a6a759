package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/lucerohealth/psiflow/internal/psi/model"
)

func day(n int) time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func classify(t *testing.T, rec *model.EncounterRecord, name string) *model.Classification {
	t.Helper()
	cls, err := New(testRegistry()).Classify(rec, name)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return cls
}

func wantStatus(t *testing.T, cls *model.Classification, status model.Status) {
	t.Helper()
	if cls.Status != status {
		t.Fatalf("status = %s, want %s (rationale: %v)", cls.Status, status, cls.Rationale)
	}
}

func wantRationaleContains(t *testing.T, cls *model.Classification, substr string) {
	t.Helper()
	for _, r := range cls.Rationale {
		if strings.Contains(r, substr) {
			return
		}
	}
	t.Fatalf("rationale %v does not mention %q", cls.Rationale, substr)
}

func TestPSI05RetainedItem(t *testing.T) {
	rec := adultSurgical("T81500A", model.POANo)
	cls := classify(t, rec, "PSI_05")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Retained surgical item found: T81500A (POA: N)")
	if _, ok := cls.Evidence["matched_codes"]; !ok {
		t.Fatal("expected matched_codes evidence")
	}
}

func TestPSI05POAProtects(t *testing.T) {
	cls := classify(t, adultSurgical("T81500A", model.POAYes), "PSI_05")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "No qualifying retained surgical item codes found")
	if len(cls.Evidence) != 0 {
		t.Fatalf("exclusion carried evidence: %v", cls.Evidence)
	}
}

func TestPSI05NonSurgicalNonObstetric(t *testing.T) {
	rec := adultSurgical("T81500A", model.POANo)
	rec.MSDRG = "500"
	cls := classify(t, rec, "PSI_05")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Not surgical DRG or obstetric case")
}

func TestPSI06ChestTraumaExcludes(t *testing.T) {
	rec := adultSurgical("J95811", model.POANo)
	rec.Diagnoses = append(rec.Diagnoses, model.DiagnosisEntry{
		Code: "S2230XA", POA: model.POAYes, Position: model.PositionSecondary, Seq: 3,
	})
	cls := classify(t, rec, "PSI_06")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Chest trauma diagnosis present")
}

func TestPSI06Inclusion(t *testing.T) {
	// POA of U counts as hospital-acquired.
	cls := classify(t, adultSurgical("J95811", model.POAUnable), "PSI_06")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Iatrogenic pneumothorax found: J95811 (POA: U)")
}

func TestPSI07ShortStayExcludes(t *testing.T) {
	rec := adultSurgical("T80211A", model.POANo)
	los := 1.0
	rec.LengthOfStay = &los
	cls := classify(t, rec, "PSI_07")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Length of stay < 2 days")
}

func TestPSI07CancerExcludes(t *testing.T) {
	rec := adultSurgical("T80211A", model.POANo)
	rec.Diagnoses = append(rec.Diagnoses, model.DiagnosisEntry{
		Code: "C3490", POA: model.POAYes, Position: model.PositionSecondary, Seq: 3,
	})
	cls := classify(t, rec, "PSI_07")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Cancer diagnosis present")
}

func TestPSI08HipTakesPriority(t *testing.T) {
	rec := adultSurgical("S42001A", model.POANo)
	rec.Diagnoses = append(rec.Diagnoses, model.DiagnosisEntry{
		Code: "S72001A", POA: model.POANo, Position: model.PositionSecondary, Seq: 3,
	})
	cls := classify(t, rec, "PSI_08")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Hip fracture found: S72001A (takes priority)")
	if cls.Evidence["fracture_type"] != "hip" {
		t.Fatalf("fracture_type = %v, want hip", cls.Evidence["fracture_type"])
	}
	matches := cls.Evidence["matched_codes"].([]model.DxMatch)
	if len(matches) != 2 {
		t.Fatalf("expected both fracture matches in evidence, got %v", matches)
	}
}

func TestPSI08OtherFracture(t *testing.T) {
	cls := classify(t, adultSurgical("S42001A", model.POANo), "PSI_08")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Other fracture found: S42001A")
	if cls.Evidence["fracture_type"] != "other" {
		t.Fatalf("fracture_type = %v, want other", cls.Evidence["fracture_type"])
	}
}

func TestPSI09RequiresORProcedure(t *testing.T) {
	cls := classify(t, adultSurgical("K922", model.POANo), "PSI_09")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "No operating room procedures found")
}

func TestPSI09DualInclusion(t *testing.T) {
	rec := adultSurgical("K922", model.POANo)
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(0)),
		datedProc("0W3P8ZZ", 2, day(1)),
	}
	cls := classify(t, rec, "PSI_09")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Both hemorrhage diagnosis and treatment found")
	if _, ok := cls.Evidence["proc_matches"]; !ok {
		t.Fatal("expected proc_matches evidence")
	}
}

func TestPSI09TreatmentBeforeORExcludes(t *testing.T) {
	rec := adultSurgical("K922", model.POANo)
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(2)),
		datedProc("0W3P8ZZ", 2, day(1)),
	}
	cls := classify(t, rec, "PSI_09")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Timing exclusion: Treatment procedure 0W3P8ZZ occurs before OR procedure")
}

func TestPSI09UndatedTreatmentNotExcluded(t *testing.T) {
	// Without dates on the treatment procedure, timing cannot exclude.
	rec := adultSurgical("K922", model.POANo)
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(0)),
		{Code: "0W3P8ZZ", Seq: 2},
	}
	cls := classify(t, rec, "PSI_09")
	wantStatus(t, cls, model.StatusInclusion)
}

func TestPSI10PartialBranches(t *testing.T) {
	rec := adultSurgical("N170", model.POANo)
	cls := classify(t, rec, "PSI_10")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "diagnosis found but no")

	rec = adultSurgical("K5790", model.POAYes)
	rec.Procedures = []model.ProcedureEntry{{Code: "5A1D70Z", Seq: 1}}
	cls = classify(t, rec, "PSI_10")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "procedure found but no")
}

func TestPSI10DualInclusionAndCardiacExclusion(t *testing.T) {
	rec := adultSurgical("N170", model.POANo)
	rec.Procedures = []model.ProcedureEntry{{Code: "5A1D70Z", Seq: 1}}
	cls := classify(t, rec, "PSI_10")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Both kidney failure and dialysis found")

	rec.Diagnoses = append(rec.Diagnoses, model.DiagnosisEntry{
		Code: "I469", POA: model.POAYes, Position: model.PositionSecondary, Seq: 3,
	})
	cls = classify(t, rec, "PSI_10")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Cardiac/kidney condition exclusion: I469")
}

func TestPSI11RequiresElectiveAdmission(t *testing.T) {
	rec := adultSurgical("J9600", model.POANo)
	atype := 1
	rec.AdmissionType = &atype
	cls := classify(t, rec, "PSI_11")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Not elective admission: ATYPE = 1")
}

func TestPSI11EitherCriterionIncludes(t *testing.T) {
	rec := adultSurgical("J9600", model.POANo)
	atype := 3
	rec.AdmissionType = &atype
	cls := classify(t, rec, "PSI_11")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Respiratory failure criteria met: respiratory_failure_diagnosis")

	rec = adultSurgical("K5790", model.POAYes)
	rec.AdmissionType = &atype
	rec.Procedures = []model.ProcedureEntry{{Code: "5A1955Z", Seq: 1}}
	cls = classify(t, rec, "PSI_11")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "ventilation_procedures")
}

func TestPSI12VTEEvents(t *testing.T) {
	rec := adultSurgical("I82401", model.POANo)
	rec.Procedures = []model.ProcedureEntry{{Code: "0DTJ0ZZ", Seq: 1}}
	rec.Diagnoses = append(rec.Diagnoses, model.DiagnosisEntry{
		Code: "I2699", POA: model.POANo, Position: model.PositionSecondary, Seq: 3,
	})
	cls := classify(t, rec, "PSI_12")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "VTE event found: DVT, PE")
	if _, ok := cls.Evidence["dvt_matches"]; !ok {
		t.Fatal("expected dvt_matches evidence")
	}
	if _, ok := cls.Evidence["pe_matches"]; !ok {
		t.Fatal("expected pe_matches evidence")
	}
}

func TestPSI12HITExcludes(t *testing.T) {
	rec := adultSurgical("I82401", model.POANo)
	rec.Procedures = []model.ProcedureEntry{{Code: "0DTJ0ZZ", Seq: 1}}
	rec.Diagnoses = append(rec.Diagnoses, model.DiagnosisEntry{
		Code: "D7582", POA: model.POANo, Position: model.PositionSecondary, Seq: 3,
	})
	cls := classify(t, rec, "PSI_12")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Heparin-induced thrombocytopenia present")
}

func electiveSurgicalWithOR(secondary string, poa model.POAFlag) *model.EncounterRecord {
	rec := adultSurgical(secondary, poa)
	atype := 3
	rec.AdmissionType = &atype
	rec.Procedures = []model.ProcedureEntry{datedProc("0DTJ0ZZ", 1, day(2))}
	admit := day(0)
	rec.AdmitDate = &admit
	return rec
}

func TestPSI13SepsisInclusion(t *testing.T) {
	cls := classify(t, electiveSurgicalWithOR("A419", model.POANo), "PSI_13")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Postoperative sepsis found: A419 (POA: N)")
	if _, ok := cls.Evidence["sepsis_matches"]; !ok {
		t.Fatal("expected sepsis_matches evidence")
	}
}

func TestPSI13SepsisOnAdmissionExcludes(t *testing.T) {
	cls := classify(t, electiveSurgicalWithOR("A419", model.POAYes), "PSI_13")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Sepsis present on admission: A419")
}

func TestPSI13LateSurgeryExcludes(t *testing.T) {
	rec := electiveSurgicalWithOR("A419", model.POANo)
	rec.Procedures = []model.ProcedureEntry{datedProc("0DTJ0ZZ", 1, day(10))}
	cls := classify(t, rec, "PSI_13")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Late surgery: 10 days after admission (>=10)")
}

func TestPSI13InfectionPrincipalExcludes(t *testing.T) {
	rec := electiveSurgicalWithOR("A419", model.POANo)
	rec.PrincipalDx = "K650"
	rec.Diagnoses[0].Code = "K650"
	cls := classify(t, rec, "PSI_13")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Principal diagnosis of infection")
}

func TestPSI14StratumLabels(t *testing.T) {
	rec := adultSurgical("T8130XA", model.POANo)
	los := 5.0
	rec.LengthOfStay = &los
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(0)),
		datedProc("0WQFXZZ", 2, day(3)),
	}
	cls := classify(t, rec, "PSI_14")
	wantStatus(t, cls, model.StatusInclusion)
	if cls.Evidence["stratum"] != "open_approach" {
		t.Fatalf("stratum = %v, want open_approach", cls.Evidence["stratum"])
	}

	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ4ZZ", 1, day(0)),
		datedProc("0WQFXZZ", 2, day(3)),
	}
	cls = classify(t, rec, "PSI_14")
	wantStatus(t, cls, model.StatusInclusion)
	if cls.Evidence["stratum"] != "non_open_approach" {
		t.Fatalf("stratum = %v, want non_open_approach", cls.Evidence["stratum"])
	}
}

func TestPSI14ReclosureTimingExcludes(t *testing.T) {
	rec := adultSurgical("T8130XA", model.POANo)
	los := 5.0
	rec.LengthOfStay = &los
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(3)),
		datedProc("0WQFXZZ", 2, day(3)),
	}
	cls := classify(t, rec, "PSI_14")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Timing exclusion")
}

func TestPSI14PartialBranch(t *testing.T) {
	rec := adultSurgical("K5790", model.POAYes)
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(0)),
	}
	cls := classify(t, rec, "PSI_14")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Neither reclosure procedure nor wound disruption diagnosis found")
}

func TestPSI15Inclusion(t *testing.T) {
	rec := adultSurgical("S3602XA", model.POANo)
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(0)),
		datedProc("07QP0ZZ", 2, day(5)),
	}
	cls := classify(t, rec, "PSI_15")
	wantStatus(t, cls, model.StatusInclusion)
	wantRationaleContains(t, cls, "Organ injury with related procedure found: spleen")
	organs := cls.Evidence["qualifying_organs"].([]string)
	if len(organs) != 1 || organs[0] != "spleen" {
		t.Fatalf("qualifying_organs = %v", organs)
	}
}

func TestPSI15POAInjuryExcludes(t *testing.T) {
	rec := adultSurgical("S3602XA", model.POAYes)
	rec.Procedures = []model.ProcedureEntry{
		datedProc("0DTJ0ZZ", 1, day(0)),
		datedProc("07QP0ZZ", 2, day(5)),
	}
	cls := classify(t, rec, "PSI_15")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "POA injury with related procedure for: spleen")
}

func TestPSI15MissingDatesExcludes(t *testing.T) {
	rec := adultSurgical("S3602XA", model.POANo)
	rec.Procedures = []model.ProcedureEntry{
		{Code: "0DTJ0ZZ", Seq: 1},
		datedProc("07QP0ZZ", 2, day(5)),
	}
	cls := classify(t, rec, "PSI_15")
	wantStatus(t, cls, model.StatusExclusion)
	wantRationaleContains(t, cls, "Missing abdominopelvic procedure dates")
}
