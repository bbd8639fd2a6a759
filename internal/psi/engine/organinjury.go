package engine

import (
	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

// OrganSystem identifies one of the six anatomical systems PSI 15 evaluates
// independently. The enumeration is closed: the systems and their code-set
// bindings are fixed, not user data.
type OrganSystem string

const (
	OrganSpleen    OrganSystem = "spleen"
	OrganAdrenal   OrganSystem = "adrenal"
	OrganVessel    OrganSystem = "vessel"
	OrganDiaphragm OrganSystem = "diaphragm"
	OrganGI        OrganSystem = "gi"
	OrganGU        OrganSystem = "gu"
)

// OrganSystems lists every system in a stable evaluation order.
var OrganSystems = []OrganSystem{
	OrganSpleen,
	OrganAdrenal,
	OrganVessel,
	OrganDiaphragm,
	OrganGI,
	OrganGU,
}

type organCodeBinding struct {
	injurySet string
	repairSet string
}

var organBindings = map[OrganSystem]organCodeBinding{
	OrganSpleen:    {codeset.SpleenInjuryDx, codeset.SpleenRepairPr},
	OrganAdrenal:   {codeset.AdrenalInjuryDx, codeset.AdrenalRepairPr},
	OrganVessel:    {codeset.VesselInjuryDx, codeset.VesselRepairPr},
	OrganDiaphragm: {codeset.DiaphragmInjuryDx, codeset.DiaphragmRepairPr},
	OrganGI:        {codeset.GIInjuryDx, codeset.GIRepairPr},
	OrganGU:        {codeset.GUInjuryDx, codeset.GURepairPr},
}

// Repair procedures count only inside a closed window after the index
// procedure. Same-day repairs are assumed to be intraoperative recognition,
// not a safety event, so the lower bound is strictly positive.
const (
	repairWindowMinDays = 1
	repairWindowMaxDays = 30
)

// WindowedProcedure is a repair procedure that fell inside the organ window,
// with its day offset from the index procedure.
type WindowedProcedure struct {
	Code      string `json:"code"`
	Seq       int    `json:"seq"`
	DayOffset int    `json:"day_offset"`
}

// OrganAnalysis is the per-organ evaluation result. MeetsNumeratorCriteria
// requires both an injury not protected by POA and an in-window repair
// procedure; a POA-protected injury alongside an in-window repair is an
// exclusion signal handled by the caller.
type OrganAnalysis struct {
	HasInjury                   bool
	HasNonPOAInjury             bool
	HasPOAInjury                bool
	HasRelatedProcedureInWindow bool
	MeetsNumeratorCriteria      bool
	NonPOAInjuries              []model.DxMatch
	POAInjuries                 []model.DxMatch
	RelatedProcedures           []WindowedProcedure
}

// analyzeOrganInjuries evaluates every organ system against the encounter.
// The index procedure is the earliest dated abdominopelvic procedure; when no
// dated index exists the analysis is empty and the caller must treat the case
// as insufficient data, never as a match.
func analyzeOrganInjuries(rec *model.EncounterRecord, reg *codeset.Registry) map[OrganSystem]OrganAnalysis {
	index, ok := earliestDated(rec.Procedures, reg.Get(codeset.AbdominopelvicPr))
	if !ok {
		return nil
	}

	out := make(map[OrganSystem]OrganAnalysis, len(OrganSystems))
	for _, organ := range OrganSystems {
		binding := organBindings[organ]
		injurySet := reg.Get(binding.injurySet)
		repairSet := reg.Get(binding.repairSet)

		var a OrganAnalysis
		for _, d := range rec.Diagnoses {
			if !injurySet.Contains(d.Code) {
				continue
			}
			a.HasInjury = true
			if d.Position == model.PositionPrincipal || d.POA.ProtectsFromNumerator() {
				a.HasPOAInjury = true
				a.POAInjuries = append(a.POAInjuries, model.DxMatch{Code: d.Code, POA: d.POA})
			} else {
				a.HasNonPOAInjury = true
				a.NonPOAInjuries = append(a.NonPOAInjuries, model.DxMatch{Code: d.Code, POA: d.POA})
			}
		}

		for _, p := range rec.Procedures {
			if !repairSet.Contains(p.Code) || !p.Dated() {
				continue
			}
			offset := daysBetween(*index.Date, *p.Date)
			if offset >= repairWindowMinDays && offset <= repairWindowMaxDays {
				a.HasRelatedProcedureInWindow = true
				a.RelatedProcedures = append(a.RelatedProcedures, WindowedProcedure{
					Code:      p.Code,
					Seq:       p.Seq,
					DayOffset: offset,
				})
			}
		}

		a.MeetsNumeratorCriteria = a.HasNonPOAInjury && a.HasRelatedProcedureInWindow
		out[organ] = a
	}
	return out
}
