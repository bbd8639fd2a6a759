package engine

import (
	"fmt"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

// evalContext bundles the record and registry for one classification pass.
type evalContext struct {
	rec *model.EncounterRecord
	reg *codeset.Registry
}

func (ec *evalContext) set(name string) codeset.Set {
	return ec.reg.Get(name)
}

func (ec *evalContext) principalIn(name string) bool {
	return ec.set(name).Contains(ec.rec.PrincipalDx)
}

func (ec *evalContext) anyDxIn(names ...string) (model.DiagnosisEntry, bool) {
	for _, d := range ec.rec.Diagnoses {
		for _, name := range names {
			if ec.set(name).Contains(d.Code) {
				return d, true
			}
		}
	}
	return model.DiagnosisEntry{}, false
}

// secondaryNonPOA returns the secondary diagnoses in the set that are not
// protected by an explicit POA=Y, in slot order.
func (ec *evalContext) secondaryNonPOA(name string) []model.DiagnosisEntry {
	set := ec.set(name)
	var out []model.DiagnosisEntry
	for _, d := range ec.rec.Diagnoses {
		if d.IsSecondary() && set.Contains(d.Code) && !d.POA.ProtectsFromNumerator() {
			out = append(out, d)
		}
	}
	return out
}

// secondaryPOA returns the secondary diagnoses in the set carrying POA=Y.
func (ec *evalContext) secondaryPOA(name string) []model.DiagnosisEntry {
	set := ec.set(name)
	var out []model.DiagnosisEntry
	for _, d := range ec.rec.Diagnoses {
		if d.IsSecondary() && set.Contains(d.Code) && d.POA == model.POAYes {
			out = append(out, d)
		}
	}
	return out
}

func (ec *evalContext) procsIn(names ...string) []model.ProcedureEntry {
	var out []model.ProcedureEntry
	for _, p := range ec.rec.Procedures {
		for _, name := range names {
			if ec.set(name).Contains(p.Code) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (ec *evalContext) hasProcIn(names ...string) bool {
	return len(ec.procsIn(names...)) > 0
}

// checkFn is one population or exclusion test: it returns the terminal
// exclusion reason and true when the encounter must be excluded.
type checkFn func(ec *evalContext) (string, bool)

// cohortPred is one arm of a population test.
type cohortPred func(ec *evalContext) bool

func inDRG(name string) cohortPred {
	return func(ec *evalContext) bool { return ec.set(name).Contains(ec.rec.MSDRG) }
}

func principalDxIn(name string) cohortPred {
	return func(ec *evalContext) bool { return ec.principalIn(name) }
}

// population builds a check that passes when any cohort arm matches.
func population(reason string, arms ...cohortPred) checkFn {
	return func(ec *evalContext) (string, bool) {
		for _, arm := range arms {
			if arm(ec) {
				return "", false
			}
		}
		return reason, true
	}
}

// electiveAdmission requires ATYPE 3; a missing admission type fails the test.
func electiveAdmission() checkFn {
	return func(ec *evalContext) (string, bool) {
		if ec.rec.IsElective() {
			return "", false
		}
		atype := "missing"
		if ec.rec.AdmissionType != nil {
			atype = fmt.Sprintf("%d", *ec.rec.AdmissionType)
		}
		return fmt.Sprintf("Not elective admission: ATYPE = %s (required: 3)", atype), true
	}
}

// requireProcIn demands at least one procedure (dated or not) from the set.
func requireProcIn(name, reason string) checkFn {
	return func(ec *evalContext) (string, bool) {
		if ec.hasProcIn(name) {
			return "", false
		}
		return reason, true
	}
}

func requireProcInAny(reason string, names ...string) checkFn {
	return func(ec *evalContext) (string, bool) {
		if ec.hasProcIn(names...) {
			return "", false
		}
		return reason, true
	}
}

// exclPrincipalIn fires when the principal diagnosis sits in the set.
func exclPrincipalIn(name, reason string) checkFn {
	return func(ec *evalContext) (string, bool) {
		if ec.principalIn(name) {
			return reason, true
		}
		return "", false
	}
}

// exclAnyDxIn fires when any diagnosis, regardless of position or POA, sits in
// one of the sets.
func exclAnyDxIn(reason string, names ...string) checkFn {
	return func(ec *evalContext) (string, bool) {
		if _, found := ec.anyDxIn(names...); found {
			return reason, true
		}
		return "", false
	}
}

// exclSecondaryDxIn fires on any secondary diagnosis in the set, POA or not.
func exclSecondaryDxIn(name, reason string) checkFn {
	return func(ec *evalContext) (string, bool) {
		set := ec.set(name)
		for _, d := range ec.rec.Diagnoses {
			if d.IsSecondary() && set.Contains(d.Code) {
				return reason, true
			}
		}
		return "", false
	}
}

// exclSecondaryPOAIn fires when a secondary diagnosis in the set is protected
// by POA=Y; present-on-admission protects the case from the indicator.
func exclSecondaryPOAIn(name, reasonFmt string) checkFn {
	return func(ec *evalContext) (string, bool) {
		if matches := ec.secondaryPOA(name); len(matches) > 0 {
			return fmt.Sprintf(reasonFmt, matches[0].Code), true
		}
		return "", false
	}
}

// exclPrincipalOrPOAIn fires when any diagnosis in the sets is principal or
// carries POA=Y.
func exclPrincipalOrPOAIn(reasonFmt string, names ...string) checkFn {
	return func(ec *evalContext) (string, bool) {
		for _, d := range ec.rec.Diagnoses {
			for _, name := range names {
				if ec.set(name).Contains(d.Code) && (d.Position == model.PositionPrincipal || d.POA == model.POAYes) {
					return fmt.Sprintf(reasonFmt, d.Code), true
				}
			}
		}
		return "", false
	}
}

// exclPOAYesIn fires when any diagnosis in the sets carries POA=Y, regardless
// of position.
func exclPOAYesIn(reasonFmt string, names ...string) checkFn {
	return func(ec *evalContext) (string, bool) {
		for _, d := range ec.rec.Diagnoses {
			for _, name := range names {
				if ec.set(name).Contains(d.Code) && d.POA == model.POAYes {
					return fmt.Sprintf(reasonFmt, d.Code), true
				}
			}
		}
		return "", false
	}
}

// exclShortStay fires when a known length of stay falls below the threshold.
// An unknown length of stay does not exclude.
func exclShortStay(days float64) checkFn {
	return func(ec *evalContext) (string, bool) {
		if ec.rec.LengthOfStay != nil && *ec.rec.LengthOfStay < days {
			return fmt.Sprintf("Length of stay < %g days: %g", days, *ec.rec.LengthOfStay), true
		}
		return "", false
	}
}

// exclLateSurgery fires when the earliest dated OR procedure occurs at or past
// the threshold days after admission. Indeterminate timing never excludes.
func exclLateSurgery(thresholdDays int) checkFn {
	return func(ec *evalContext) (string, bool) {
		delay, ok := surgeryDelayDays(ec.rec, ec.set(codeset.ORProc))
		if ok && delay >= thresholdDays {
			return fmt.Sprintf("Late surgery: %d days after admission (>=%d)", delay, thresholdDays), true
		}
		return "", false
	}
}

// exclReclosureTiming applies the PSI 14 reclosure-after-index constraint.
func exclReclosureTiming() checkFn {
	return func(ec *evalContext) (string, bool) {
		reason, excluded := reclosurePrecedesIndex(
			ec.rec.Procedures,
			ec.set(codeset.AbdominalOpen),
			ec.set(codeset.AbdominalOther),
			ec.set(codeset.ReclosurePr),
		)
		if excluded {
			return "Timing exclusion: " + reason, true
		}
		return "", false
	}
}

func dxMatches(entries []model.DiagnosisEntry) []model.DxMatch {
	out := make([]model.DxMatch, 0, len(entries))
	for _, d := range entries {
		out = append(out, model.DxMatch{Code: d.Code, POA: d.POA})
	}
	return out
}

func procMatches(entries []model.ProcedureEntry) []model.ProcMatch {
	out := make([]model.ProcMatch, 0, len(entries))
	for _, p := range entries {
		out = append(out, model.ProcMatch{Code: p.Code, Seq: p.Seq})
	}
	return out
}
