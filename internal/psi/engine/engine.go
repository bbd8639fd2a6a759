// Package engine classifies inpatient encounters against the AHRQ Patient
// Safety Indicators PSI 05 through PSI 15. Each indicator runs a shared
// preamble, then its population tests, hard exclusions, and numerator in a
// fixed order, and the first failing check decides the outcome.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lucerohealth/psiflow/internal/psi/codeset"
	"github.com/lucerohealth/psiflow/internal/psi/model"
)

// ErrUnknownIndicator is returned by Classify for an indicator name the
// engine does not implement.
var ErrUnknownIndicator = errors.New("unknown indicator")

// ungroupableDRG marks encounters the grouper could not assign.
const ungroupableDRG = 999

// Engine evaluates encounters against the loaded code sets. It is stateless
// between calls and safe for concurrent use.
type Engine struct {
	registry   *codeset.Registry
	indicators map[string]indicator
	names      []string
}

// New builds an Engine over the given code set registry.
func New(registry *codeset.Registry) *Engine {
	defs := indicatorDefs()
	byName := make(map[string]indicator, len(defs))
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		byName[def.name] = def
		names = append(names, def.name)
	}
	sort.Strings(names)
	return &Engine{registry: registry, indicators: byName, names: names}
}

// Indicators returns the supported indicator names in sorted order.
func (e *Engine) Indicators() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// RequiredCodeSets returns the code set names the indicator consults.
func (e *Engine) RequiredCodeSets(name string) ([]string, error) {
	def, ok := e.indicators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndicator, name)
	}
	out := make([]string, len(def.codeSets))
	copy(out, def.codeSets)
	return out, nil
}

// Classify evaluates one encounter against one indicator. The returned
// Classification is always non-nil when err is nil; the encounter itself is
// never mutated.
func (e *Engine) Classify(rec *model.EncounterRecord, name string) (*model.Classification, error) {
	def, ok := e.indicators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndicator, name)
	}

	cls := model.NewClassification()
	if reason, excluded := e.preamble(rec); excluded {
		cls.Exclude(reason)
		return cls, nil
	}

	ec := &evalContext{rec: rec, reg: e.registry}
	for _, check := range def.population {
		if reason, failed := check(ec); failed {
			cls.Exclude(reason)
			return cls, nil
		}
	}
	for _, check := range def.exclusions {
		if reason, excluded := check(ec); excluded {
			cls.Exclude(reason)
			return cls, nil
		}
	}
	def.numerator(ec, cls)
	return cls, nil
}

// preamble applies the exclusions shared by every indicator: pediatric cases,
// ungroupable DRGs, and obstetric or neonatal principal diagnoses.
func (e *Engine) preamble(rec *model.EncounterRecord) (string, bool) {
	if rec.Age < 18 {
		return fmt.Sprintf("Age exclusion: %d < 18", rec.Age), true
	}
	if rec.DRG != nil && *rec.DRG == ungroupableDRG {
		return "Ungroupable DRG (999)", true
	}
	if e.registry.Get(codeset.Obstetric).Contains(rec.PrincipalDx) {
		return "Obstetric case (MDC 14)", true
	}
	if e.registry.Get(codeset.Neonatal).Contains(rec.PrincipalDx) {
		return "Neonatal case (MDC 15)", true
	}
	return "", false
}
