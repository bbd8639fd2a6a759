package codeset

import "strings"

// Canonical code-set names consumed by the rule engine. Appendix columns may
// carry these names with or without the _CODES suffix; CanonicalName resolves
// either form.
const (
	// Shared cohorts
	Surgical  = "SURGI2R_CODES"
	Medical   = "MEDIC2R_CODES"
	Obstetric = "MDC14PRINDX_CODES"
	Neonatal  = "MDC15PRINDX_CODES"
	ORProc    = "ORPROC_CODES"

	// PSI 05
	RetainedItemDx = "FOREIID_CODES"

	// PSI 06
	IatrogenicPneumoDx   = "IATROID_CODES"
	NonTraumaticPneumoDx = "IATPTXD_CODES"
	ChestTraumaDx        = "CTRAUMD_CODES"
	PleuralDx            = "PLEURAD_CODES"

	// PSI 07
	CentralLineInfectionDx = "IDTMC3D_CODES"
	CancerDx               = "CANCEID_CODES"
	ImmunocompromisedDx    = "IMMUNID_CODES"

	// PSI 08
	FractureDx           = "FXID_CODES"
	HipFractureDx        = "HIPFXID_CODES"
	ProstheticFractureDx = "PROSFXID_CODES"

	// PSI 09
	HemorrhageDx         = "POHMRI2D_CODES"
	HemorrhageControlPr  = "HEMOTH2P_CODES"
	CoagulationDx        = "COAGDID_CODES"
	MedicationBleedingDx = "MEDBLEEDD_CODES"

	// PSI 10
	KidneyFailureDx = "PHYSIDB_CODES"
	DialysisPr      = "DIALYIP_CODES"
	CardiacArrestDx = "CARDIID_CODES"
	CardiacOtherDx  = "CARDRID_CODES"
	ShockDx         = "SHOCKID_CODES"
	ChronicRenalDx  = "CRENLFD_CODES"

	// PSI 11
	RespFailureDx     = "ACURF2D_CODES"
	RespFailureProcDx = "ACURF3D_CODES"
	Vent96PlusPr      = "PR9672P_CODES"
	VentUnder96Pr     = "PR9671P_CODES"
	IntubationPr      = "PR9604P_CODES"
	NeuromuscularDx   = "NEUROMD_CODES"
	MalignantHypDx    = "MALHYPD_CODES"

	// PSI 12
	DVTDx         = "DEEPVIB_CODES"
	PEDx          = "PULMOID_CODES"
	HITDx         = "HITD_CODES"
	NeuroTraumaDx = "NEURTRAD_CODES"

	// PSI 13
	SepsisDx    = "SEPTI2D_CODES"
	InfectionDx = "INFECID_CODES"

	// PSI 14
	ReclosurePr    = "RECLOIP_CODES"
	WoundDisruptDx = "ABWALLCD_CODES"
	AbdominalOpen  = "ABDOMIPOPEN_CODES"
	AbdominalOther = "ABDOMIPOTHER_CODES"

	// PSI 15
	AbdominopelvicPr  = "ABDOMI15P_CODES"
	SpleenInjuryDx    = "SPLEEN15D_CODES"
	SpleenRepairPr    = "SPLEEN15P_CODES"
	AdrenalInjuryDx   = "ADRENAL15D_CODES"
	AdrenalRepairPr   = "ADRENAL15P_CODES"
	VesselInjuryDx    = "VESSEL15D_CODES"
	VesselRepairPr    = "VESSEL15P_CODES"
	DiaphragmInjuryDx = "DIAPHR15D_CODES"
	DiaphragmRepairPr = "DIAPHR15P_CODES"
	GIInjuryDx        = "GI15D_CODES"
	GIRepairPr        = "GI15P_CODES"
	GUInjuryDx        = "GU15D_CODES"
	GURepairPr        = "GU15P_CODES"
)

// CanonicalName maps a raw appendix column header to its registry name.
// Headers already carrying the _CODES suffix pass through cleaned; anything
// else gains the suffix so SEPTI2D and SEPTI2D_CODES land in the same set.
func CanonicalName(header string) string {
	h := strings.ToUpper(strings.TrimSpace(header))
	if h == "" {
		return ""
	}
	if strings.HasSuffix(h, "_CODES") {
		return h
	}
	return h + "_CODES"
}
