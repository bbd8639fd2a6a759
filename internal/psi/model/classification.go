package model

// Status is the binary outcome of one (encounter, indicator) evaluation.
type Status string

const (
	StatusInclusion Status = "Inclusion"
	StatusExclusion Status = "Exclusion"
)

// Classification is the engine's output for one (encounter, indicator) pair.
// Rationale records every test outcome leading to the final status, in
// evaluation order, and always holds at least one entry explaining the
// terminal decision. Evidence holds the matched diagnosis/procedure tuples for
// audit; it is populated only on Inclusion.
type Classification struct {
	Status    Status
	Rationale []string
	Evidence  map[string]any
}

// NewClassification returns an exclusion-by-default classification with an
// empty evidence map, ready for the evaluator to populate.
func NewClassification() *Classification {
	return &Classification{
		Status:   StatusExclusion,
		Evidence: make(map[string]any),
	}
}

// Exclude appends a terminal exclusion reason.
func (c *Classification) Exclude(reason string) {
	c.Status = StatusExclusion
	c.Rationale = append(c.Rationale, reason)
}

// Include marks the classification positive with the given reason.
func (c *Classification) Include(reason string) {
	c.Status = StatusInclusion
	c.Rationale = append(c.Rationale, reason)
}

// DxMatch is one matched diagnosis recorded as evidence.
type DxMatch struct {
	Code string  `json:"code"`
	POA  POAFlag `json:"poa"`
}

// ProcMatch is one matched procedure recorded as evidence.
type ProcMatch struct {
	Code string `json:"code"`
	Seq  int    `json:"seq"`
}
