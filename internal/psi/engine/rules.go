package engine

import (
	"fmt"
	"strings"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

// numeratorFn runs after the population and exclusion checks pass. It either
// includes the encounter with matched evidence or records why no qualifying
// pattern was found.
type numeratorFn func(ec *evalContext, cls *model.Classification)

// indicator is one PSI expressed as data: an ordered population test, ordered
// hard exclusions, and a numerator, interpreted by the generic evaluator.
type indicator struct {
	name       string
	codeSets   []string
	population []checkFn
	exclusions []checkFn
	numerator  numeratorFn
}

// singleDxNumerator is the shape shared by the single-condition indicators:
// any secondary, non-POA diagnosis in the target set triggers inclusion.
func singleDxNumerator(setName, evidenceKey, foundLabel, notFoundMsg string) numeratorFn {
	return func(ec *evalContext, cls *model.Classification) {
		matches := ec.secondaryNonPOA(setName)
		if len(matches) == 0 {
			cls.Exclude(notFoundMsg)
			return
		}
		cls.Include(fmt.Sprintf("%s: %s (POA: %s)", foundLabel, matches[0].Code, matches[0].POA))
		cls.Evidence[evidenceKey] = dxMatches(matches)
	}
}

func indicatorDefs() []indicator {
	return []indicator{
		{
			name:     "PSI_05",
			codeSets: []string{codeset.Surgical, codeset.Obstetric, codeset.RetainedItemDx},
			population: []checkFn{
				population("Not surgical DRG or obstetric case",
					inDRG(codeset.Surgical), principalDxIn(codeset.Obstetric)),
			},
			numerator: singleDxNumerator(codeset.RetainedItemDx, "matched_codes",
				"Retained surgical item found",
				"No qualifying retained surgical item codes found"),
		},
		{
			name:     "PSI_06",
			codeSets: []string{codeset.Surgical, codeset.Medical, codeset.IatrogenicPneumoDx, codeset.NonTraumaticPneumoDx, codeset.ChestTraumaDx},
			population: []checkFn{
				population("Not surgical or medical DRG",
					inDRG(codeset.Surgical), inDRG(codeset.Medical)),
			},
			exclusions: []checkFn{
				exclPrincipalIn(codeset.NonTraumaticPneumoDx, "Principal diagnosis of non-traumatic pneumothorax"),
				exclAnyDxIn("Chest trauma diagnosis present", codeset.ChestTraumaDx),
			},
			numerator: singleDxNumerator(codeset.IatrogenicPneumoDx, "matched_codes",
				"Iatrogenic pneumothorax found",
				"No qualifying iatrogenic pneumothorax codes found"),
		},
		{
			name:     "PSI_07",
			codeSets: []string{codeset.Surgical, codeset.Medical, codeset.Obstetric, codeset.CentralLineInfectionDx, codeset.CancerDx},
			population: []checkFn{
				population("Not surgical, medical, or obstetric case",
					inDRG(codeset.Surgical), inDRG(codeset.Medical), principalDxIn(codeset.Obstetric)),
			},
			exclusions: []checkFn{
				exclShortStay(2),
				exclAnyDxIn("Cancer diagnosis present", codeset.CancerDx),
			},
			numerator: singleDxNumerator(codeset.CentralLineInfectionDx, "matched_codes",
				"Central line infection found",
				"No qualifying central line infection codes found"),
		},
		{
			name:     "PSI_08",
			codeSets: []string{codeset.Surgical, codeset.Medical, codeset.FractureDx, codeset.HipFractureDx, codeset.ProstheticFractureDx},
			population: []checkFn{
				population("Not surgical or medical DRG",
					inDRG(codeset.Surgical), inDRG(codeset.Medical)),
			},
			exclusions: []checkFn{
				exclAnyDxIn("Prosthetic fracture present", codeset.ProstheticFractureDx),
			},
			numerator: psi08Numerator,
		},
		{
			name:     "PSI_09",
			codeSets: []string{codeset.Surgical, codeset.ORProc, codeset.HemorrhageDx, codeset.HemorrhageControlPr, codeset.CoagulationDx},
			population: []checkFn{
				population("Not surgical DRG", inDRG(codeset.Surgical)),
				requireProcIn(codeset.ORProc, "No operating room procedures found"),
			},
			exclusions: []checkFn{
				exclAnyDxIn("Coagulation disorder present", codeset.CoagulationDx),
			},
			numerator: psi09Numerator,
		},
		{
			name:     "PSI_10",
			codeSets: []string{codeset.Surgical, codeset.KidneyFailureDx, codeset.DialysisPr, codeset.CardiacArrestDx, codeset.CardiacOtherDx, codeset.ShockDx, codeset.ChronicRenalDx},
			population: []checkFn{
				population("Not surgical DRG", inDRG(codeset.Surgical)),
			},
			exclusions: []checkFn{
				exclPrincipalOrPOAIn("Cardiac/kidney condition exclusion: %s",
					codeset.CardiacArrestDx, codeset.CardiacOtherDx, codeset.ShockDx, codeset.ChronicRenalDx),
			},
			numerator: psi10Numerator,
		},
		{
			name:     "PSI_11",
			codeSets: []string{codeset.Surgical, codeset.RespFailureDx, codeset.Vent96PlusPr, codeset.VentUnder96Pr, codeset.IntubationPr, codeset.NeuromuscularDx, codeset.MalignantHypDx},
			population: []checkFn{
				electiveAdmission(),
				population("Not surgical DRG", inDRG(codeset.Surgical)),
			},
			exclusions: []checkFn{
				exclPOAYesIn("Neurological condition exclusion: %s",
					codeset.NeuromuscularDx, codeset.MalignantHypDx),
			},
			numerator: psi11Numerator,
		},
		{
			name:     "PSI_12",
			codeSets: []string{codeset.Surgical, codeset.ORProc, codeset.DVTDx, codeset.PEDx, codeset.HITDx},
			population: []checkFn{
				population("Not surgical DRG", inDRG(codeset.Surgical)),
				requireProcIn(codeset.ORProc, "No operating room procedures found"),
			},
			exclusions: []checkFn{
				exclSecondaryDxIn(codeset.HITDx, "Heparin-induced thrombocytopenia present"),
			},
			numerator: psi12Numerator,
		},
		{
			name:     "PSI_13",
			codeSets: []string{codeset.Surgical, codeset.ORProc, codeset.SepsisDx, codeset.InfectionDx},
			population: []checkFn{
				electiveAdmission(),
				population("Not surgical DRG", inDRG(codeset.Surgical)),
				requireProcIn(codeset.ORProc, "No operating room procedures found"),
			},
			exclusions: []checkFn{
				exclPrincipalIn(codeset.SepsisDx, "Principal diagnosis of sepsis"),
				exclSecondaryPOAIn(codeset.SepsisDx, "Sepsis present on admission: %s"),
				exclPrincipalIn(codeset.InfectionDx, "Principal diagnosis of infection"),
				exclSecondaryPOAIn(codeset.InfectionDx, "Infection present on admission: %s"),
				exclLateSurgery(10),
			},
			numerator: singleDxNumerator(codeset.SepsisDx, "sepsis_matches",
				"Postoperative sepsis found",
				"No qualifying postoperative sepsis codes found"),
		},
		{
			name:     "PSI_14",
			codeSets: []string{codeset.AbdominalOpen, codeset.AbdominalOther, codeset.ReclosurePr, codeset.WoundDisruptDx},
			population: []checkFn{
				requireProcInAny("No abdominopelvic surgery procedures found",
					codeset.AbdominalOpen, codeset.AbdominalOther),
			},
			exclusions: []checkFn{
				exclPrincipalIn(codeset.WoundDisruptDx, "Principal diagnosis of wound disruption"),
				exclSecondaryPOAIn(codeset.WoundDisruptDx, "Wound disruption present on admission: %s"),
				exclShortStay(2),
				exclReclosureTiming(),
			},
			numerator: psi14Numerator,
		},
		{
			name: "PSI_15",
			codeSets: []string{
				codeset.Surgical, codeset.Medical, codeset.AbdominopelvicPr,
				codeset.SpleenInjuryDx, codeset.SpleenRepairPr,
				codeset.AdrenalInjuryDx, codeset.AdrenalRepairPr,
				codeset.VesselInjuryDx, codeset.VesselRepairPr,
				codeset.DiaphragmInjuryDx, codeset.DiaphragmRepairPr,
				codeset.GIInjuryDx, codeset.GIRepairPr,
				codeset.GUInjuryDx, codeset.GURepairPr,
			},
			population: []checkFn{
				population("Not surgical or medical DRG",
					inDRG(codeset.Surgical), inDRG(codeset.Medical)),
				requireProcIn(codeset.AbdominopelvicPr, "No abdominopelvic procedures found"),
			},
			numerator: psi15Numerator,
		},
	}
}

// psi08Numerator applies the fracture hierarchy: any qualifying non-POA
// fracture is sufficient for inclusion, but hip-coded entries take priority
// for the reported fracture type.
func psi08Numerator(ec *evalContext, cls *model.Classification) {
	fractures := ec.secondaryNonPOA(codeset.FractureDx)
	if len(fractures) == 0 {
		cls.Exclude("No qualifying fracture codes found")
		return
	}

	hipSet := ec.set(codeset.HipFractureDx)
	var hip *model.DiagnosisEntry
	for i := range fractures {
		if hipSet.Contains(fractures[i].Code) {
			hip = &fractures[i]
			break
		}
	}

	if hip != nil {
		cls.Include(fmt.Sprintf("Hip fracture found: %s (takes priority)", hip.Code))
		cls.Evidence["fracture_type"] = "hip"
	} else {
		cls.Include(fmt.Sprintf("Other fracture found: %s", fractures[0].Code))
		cls.Evidence["fracture_type"] = "other"
	}
	cls.Evidence["matched_codes"] = dxMatches(fractures)
}

// psi09Numerator requires both a hemorrhage diagnosis and a control procedure,
// and defers to the treatment-before-OR timing exclusion when both are present.
func psi09Numerator(ec *evalContext, cls *model.Classification) {
	dx := ec.secondaryNonPOA(codeset.HemorrhageDx)
	procs := ec.procsIn(codeset.HemorrhageControlPr)

	switch {
	case len(dx) > 0 && len(procs) > 0:
		if reason, excluded := treatmentPrecedesOR(ec.rec.Procedures, ec.set(codeset.ORProc), ec.set(codeset.HemorrhageControlPr)); excluded {
			cls.Exclude("Timing exclusion: " + reason)
			return
		}
		cls.Include("Both hemorrhage diagnosis and treatment found")
		cls.Evidence["dx_matches"] = dxMatches(dx)
		cls.Evidence["proc_matches"] = procMatches(procs)
	case len(dx) > 0:
		cls.Exclude("Hemorrhage diagnosis found but no treatment procedure")
	case len(procs) > 0:
		cls.Exclude("Treatment procedure found but no hemorrhage diagnosis")
	default:
		cls.Exclude("Neither hemorrhage diagnosis nor treatment procedure found")
	}
}

// psi10Numerator requires both an acute kidney failure diagnosis and a
// dialysis procedure.
func psi10Numerator(ec *evalContext, cls *model.Classification) {
	dx := ec.secondaryNonPOA(codeset.KidneyFailureDx)
	procs := ec.procsIn(codeset.DialysisPr)

	switch {
	case len(dx) > 0 && len(procs) > 0:
		cls.Include("Both kidney failure and dialysis found")
		cls.Evidence["dx_matches"] = dxMatches(dx)
		cls.Evidence["proc_matches"] = procMatches(procs)
	case len(dx) > 0:
		cls.Exclude("Kidney failure diagnosis found but no dialysis procedure")
	case len(procs) > 0:
		cls.Exclude("Dialysis procedure found but no kidney failure diagnosis")
	default:
		cls.Exclude("Neither kidney failure diagnosis nor dialysis procedure found")
	}
}

// psi11Numerator includes on any respiratory failure criterion: a qualifying
// diagnosis or a ventilation/intubation procedure.
func psi11Numerator(ec *evalContext, cls *model.Classification) {
	var criteria []string
	if len(ec.secondaryNonPOA(codeset.RespFailureDx)) > 0 {
		criteria = append(criteria, "respiratory_failure_diagnosis")
	}
	if ec.hasProcIn(codeset.Vent96PlusPr, codeset.VentUnder96Pr, codeset.IntubationPr) {
		criteria = append(criteria, "ventilation_procedures")
	}

	if len(criteria) == 0 {
		cls.Exclude("No respiratory failure criteria met")
		return
	}
	cls.Include("Respiratory failure criteria met: " + strings.Join(criteria, ", "))
	cls.Evidence["criteria_met"] = criteria
}

// psi12Numerator includes on either venous thromboembolism arm.
func psi12Numerator(ec *evalContext, cls *model.Classification) {
	dvt := ec.secondaryNonPOA(codeset.DVTDx)
	pe := ec.secondaryNonPOA(codeset.PEDx)
	if len(dvt) == 0 && len(pe) == 0 {
		cls.Exclude("No qualifying DVT or PE codes found")
		return
	}

	var events []string
	if len(dvt) > 0 {
		events = append(events, "DVT")
		cls.Evidence["dvt_matches"] = dxMatches(dvt)
	}
	if len(pe) > 0 {
		events = append(events, "PE")
		cls.Evidence["pe_matches"] = dxMatches(pe)
	}
	cls.Include("VTE event found: " + strings.Join(events, ", "))
}

// psi14Numerator requires both a reclosure procedure and a non-POA wound
// disruption diagnosis, then labels the stratum from the surgical approach.
// Inclusions carry exactly one stratum label.
func psi14Numerator(ec *evalContext, cls *model.Classification) {
	hasReclosure := ec.hasProcIn(codeset.ReclosurePr)

	woundSet := ec.set(codeset.WoundDisruptDx)
	var wounds []model.DiagnosisEntry
	for _, d := range ec.rec.Diagnoses {
		if woundSet.Contains(d.Code) && !d.POA.ProtectsFromNumerator() {
			wounds = append(wounds, d)
		}
	}

	switch {
	case hasReclosure && len(wounds) > 0:
		cls.Include("Both reclosure procedure and wound disruption diagnosis found")
		cls.Evidence["has_reclosure"] = true
		cls.Evidence["wound_matches"] = dxMatches(wounds)
		if ec.hasProcIn(codeset.AbdominalOpen) {
			cls.Evidence["stratum"] = "open_approach"
		} else {
			cls.Evidence["stratum"] = "non_open_approach"
		}
	case hasReclosure:
		cls.Exclude("Reclosure procedure found but no wound disruption diagnosis")
	case len(wounds) > 0:
		cls.Exclude("Wound disruption diagnosis found but no reclosure procedure")
	default:
		cls.Exclude("Neither reclosure procedure nor wound disruption diagnosis found")
	}
}

// psi15Numerator runs the per-organ analysis. A POA-protected injury paired
// with an in-window repair excludes the whole case; otherwise any organ
// meeting the numerator criteria includes it.
func psi15Numerator(ec *evalContext, cls *model.Classification) {
	analysis := analyzeOrganInjuries(ec.rec, ec.reg)
	if len(analysis) == 0 {
		cls.Exclude("Missing abdominopelvic procedure dates")
		return
	}

	var poaExcluded, qualifying []string
	for _, organ := range OrganSystems {
		a := analysis[organ]
		if a.HasPOAInjury && a.HasRelatedProcedureInWindow {
			poaExcluded = append(poaExcluded, string(organ))
		}
		if a.MeetsNumeratorCriteria {
			qualifying = append(qualifying, string(organ))
		}
	}

	if len(poaExcluded) > 0 {
		cls.Exclude("POA injury with related procedure for: " + strings.Join(poaExcluded, ", "))
		return
	}
	if len(qualifying) == 0 {
		cls.Exclude("No organ-specific injury with related procedure within time window found")
		return
	}

	cls.Include("Organ injury with related procedure found: " + strings.Join(qualifying, ", "))
	cls.Evidence["qualifying_organs"] = qualifying
	matched := make(map[string]OrganAnalysis, len(qualifying))
	for _, organ := range qualifying {
		matched[organ] = analysis[OrganSystem(organ)]
	}
	cls.Evidence["organ_analysis"] = matched
}
