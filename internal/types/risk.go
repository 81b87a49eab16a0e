// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// RiskLevel is the ordinal classification of a command's potential for harm.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = map[RiskLevel]int{
	RiskSafe:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Severity returns the ordinal rank of the level. Unknown levels rank as safe.
func (r RiskLevel) Severity() int {
	return riskOrder[r]
}

// MoreSevere reports whether r outranks other.
func (r RiskLevel) MoreSevere(other RiskLevel) bool {
	return riskOrder[r] > riskOrder[other]
}

// ParseRiskLevel normalizes a risk level string, defaulting to safe.
func ParseRiskLevel(value string) RiskLevel {
	switch RiskLevel(value) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(value)
	default:
		return RiskSafe
	}
}
