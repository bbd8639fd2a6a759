package engine

import (
	"fmt"
	"time"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

// Timing helpers for order-sensitive indicators. Procedures without a
// timestamp are excluded from earliest/latest computation but still count for
// plain existence checks; when no timestamped instance of a required code
// exists the result is indeterminate and callers treat it as "not excluded".

// earliestDated returns the earliest timestamped procedure whose code belongs
// to the set. The second return is false when the result is indeterminate.
func earliestDated(procs []model.ProcedureEntry, set codeset.Set) (model.ProcedureEntry, bool) {
	var best model.ProcedureEntry
	found := false
	for _, p := range procs {
		if !set.Contains(p.Code) || !p.Dated() {
			continue
		}
		if !found || p.Date.Before(*best.Date) {
			best = p
			found = true
		}
	}
	return best, found
}

// latestDated is the mirror of earliestDated.
func latestDated(procs []model.ProcedureEntry, set codeset.Set) (model.ProcedureEntry, bool) {
	var best model.ProcedureEntry
	found := false
	for _, p := range procs {
		if !set.Contains(p.Code) || !p.Dated() {
			continue
		}
		if !found || p.Date.After(*best.Date) {
			best = p
			found = true
		}
	}
	return best, found
}

// daysBetween computes the whole-day offset from earlier to later, truncated
// toward zero. A same-day pair yields 0.
func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}

// treatmentPrecedesOR reports the exclusion reason when the earliest dated
// treatment procedure lands on or before the earliest dated OR procedure.
// Missing dates on either side are indeterminate: no exclusion.
func treatmentPrecedesOR(procs []model.ProcedureEntry, orSet, treatSet codeset.Set) (string, bool) {
	or, ok := earliestDated(procs, orSet)
	if !ok {
		return "", false
	}
	treat, ok := earliestDated(procs, treatSet)
	if !ok {
		return "", false
	}
	if !treat.Date.After(*or.Date) {
		return fmt.Sprintf("Treatment procedure %s occurs before OR procedure", treat.Code), true
	}
	return "", false
}

// surgeryDelayDays computes days from admission to the earliest dated OR
// procedure. Indeterminate when the admission date or every OR date is absent.
func surgeryDelayDays(rec *model.EncounterRecord, orSet codeset.Set) (int, bool) {
	if rec.AdmitDate == nil {
		return 0, false
	}
	or, ok := earliestDated(rec.Procedures, orSet)
	if !ok {
		return 0, false
	}
	return daysBetween(*rec.AdmitDate, *or.Date), true
}

// reclosurePrecedesIndex reports the exclusion reason when the latest dated
// reclosure procedure falls on or before the earliest dated qualifying
// abdominal procedure: the reclosure must follow, not precede or coincide
// with, the index surgery. Undated reclosures are indeterminate.
func reclosurePrecedesIndex(procs []model.ProcedureEntry, openSet, otherSet, reclosureSet codeset.Set) (string, bool) {
	reclosure, ok := latestDated(procs, reclosureSet)
	if !ok {
		return "", false
	}
	if open, ok := earliestDated(procs, openSet); ok && !reclosure.Date.After(*open.Date) {
		return "Reclosure occurs before or same day as open abdominal surgery", true
	}
	if other, ok := earliestDated(procs, otherSet); ok && !reclosure.Date.After(*other.Date) {
		return "Reclosure occurs before or same day as other abdominal surgery", true
	}
	return "", false
}
