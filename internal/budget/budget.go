// Package budget implements the declarative Budget/BudgetProfile resolution
// described in §4.8: resolve(profile, baseline) -> concrete Budget, and
// validate(budget) -> warnings.
package budget

import (
	"fmt"

	"github.com/edgeveda/core/internal/domain"
)

type multipliers struct {
	p95         float64
	drain       float64
	thermalFloor int
}

var profileMultipliers = map[domain.BudgetProfile]multipliers{
	domain.ProfileConservative: {p95: 2.0, drain: 0.6, thermalFloor: 1},
	domain.ProfileBalanced:     {p95: 1.5, drain: 1.0, thermalFloor: 2},
	domain.ProfilePerformance:  {p95: 1.1, drain: 1.5, thermalFloor: 3},
}

// floorDrainPer10Min avoids a degenerate zero drain constraint.
const floorDrainPer10Min = 0.1

// Resolve computes a concrete Budget from a named profile and a measured
// baseline (§4.8). memory_ceiling_mb is always nil: the system cannot
// shrink a loaded model, so memory is observe-only (§4.9.2).
func Resolve(profile domain.BudgetProfile, baseline domain.MeasuredBaseline) domain.Budget {
	m := profileMultipliers[profile]

	p95 := baseline.MeasuredP95MS * m.p95
	drain := baseline.MeasuredDrainPer10Min * m.drain
	if drain < floorDrainPer10Min {
		drain = floorDrainPer10Min
	}
	thermalFloor := m.thermalFloor

	return domain.Budget{
		P95LatencyMS:         &p95,
		BatteryDrainPer10Min: &drain,
		MaxThermalLevel:      &thermalFloor,
		MemoryCeilingMB:      nil,
	}
}

// Validate returns human-readable warnings for a Budget that sets
// unreachable or advisory-only constraints.
func Validate(b domain.Budget) []string {
	var warnings []string
	if b.MemoryCeilingMB != nil {
		warnings = append(warnings, "memory_ceiling_mb is advisory only unless the caller accepts model-unload mitigation")
	}
	if b.P95LatencyMS != nil && *b.P95LatencyMS < 100 {
		warnings = append(warnings, fmt.Sprintf("p95_latency_ms=%.0f is likely unreachable on-device", *b.P95LatencyMS))
	}
	return warnings
}
