// SPDX-License-Identifier: AGPL-3.0-or-later
package risk

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/wardd-org/wardd/internal/types"
)

// Classification is the outcome of running a command through the destructive
// rule table and the base-command tiers.
type Classification struct {
	Level           types.RiskLevel `json:"risk_level"`
	IsDestructive   bool            `json:"is_destructive"`
	MatchedPatterns []string        `json:"matched_patterns,omitempty"`
	Reasons         []string        `json:"reasons,omitempty"`
}

// InjectionReport is the outcome of prompt-injection detection over the
// natural-language origin of a command. It is consulted at the plan
// submission boundary, never by execution.
type InjectionReport struct {
	Suspicious bool     `json:"suspicious"`
	Confidence float64  `json:"confidence"`
	Patterns   []string `json:"patterns,omitempty"`
}

// Classify assigns a risk level to a single candidate command. Pure function
// over the input text and the static rule tables; the level is the highest
// severity among matches, safe when nothing matches.
func Classify(command string) Classification {
	out := Classification{Level: types.RiskSafe}
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return out
	}

	for _, p := range destructivePatterns {
		if p.re.MatchString(trimmed) {
			if p.level.MoreSevere(out.Level) {
				out.Level = p.level
			}
			out.MatchedPatterns = append(out.MatchedPatterns, p.re.String())
			out.Reasons = append(out.Reasons, p.message)
		}
	}

	base := BaseCommand(trimmed)
	switch {
	case safeCommands[base] && out.Level == types.RiskSafe:
		out.Reasons = append(out.Reasons, "Read-only operation")
	case highRiskCommands[base]:
		if types.RiskHigh.MoreSevere(out.Level) {
			out.Level = types.RiskHigh
		}
		out.Reasons = append(out.Reasons, "High-risk command: "+base)
	case mediumRiskCommands[base]:
		if types.RiskMedium.MoreSevere(out.Level) {
			out.Level = types.RiskMedium
		}
		out.Reasons = append(out.Reasons, "System modification command: "+base)
	case out.Level == types.RiskSafe:
		out.Level = types.RiskLow
	}

	for _, path := range criticalConfigPaths {
		if strings.Contains(trimmed, path) {
			if types.RiskHigh.MoreSevere(out.Level) {
				out.Level = types.RiskHigh
			}
			out.Reasons = append(out.Reasons, "Affects critical config: "+path)
			break
		}
	}

	out.IsDestructive = out.Level == types.RiskHigh || out.Level == types.RiskCritical
	return out
}

// DetectInjection scans free text for prompt-injection signatures. Confidence
// grows with the number of distinct patterns matched, capped at 1.0.
func DetectInjection(text string) InjectionReport {
	var report InjectionReport
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			report.Patterns = append(report.Patterns, p.message)
		}
	}
	if len(report.Patterns) > 0 {
		report.Suspicious = true
		report.Confidence = float64(len(report.Patterns)) * 0.3
		if report.Confidence > 1.0 {
			report.Confidence = 1.0
		}
	}
	return report
}

// BaseCommand extracts the command name a shell would resolve, skipping a
// leading sudo and stripping any path prefix.
func BaseCommand(command string) string {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return ""
	}
	base := trimPath(parts[0])
	if base == "sudo" && len(parts) > 1 {
		base = trimPath(parts[1])
	}
	return base
}

// IsSudo reports whether the command runs under sudo.
func IsSudo(command string) bool {
	parts := strings.Fields(command)
	return len(parts) > 0 && trimPath(parts[0]) == "sudo"
}

// Category maps a command onto its rate-limit category, empty when the
// command belongs to no limited category. Sudo outranks the others.
func Category(command string) string {
	if IsSudo(command) {
		return types.CategorySudo
	}
	base := BaseCommand(command)
	switch {
	case base == "systemctl" || base == "service":
		return types.CategoryService
	case containerCommands[base]:
		return types.CategoryContainer
	case packageManagers[base]:
		return types.CategoryPackage
	default:
		return ""
	}
}

// Targets extracts the identifiers a category command operates on: unit
// names for service commands, container names or IDs, package names. The
// returned kind is the matching rate category, empty when the command acts
// on no limited resource.
func Targets(command string) (string, []string) {
	tokens, err := shellquote.Split(command)
	if err != nil || len(tokens) == 0 {
		return "", nil
	}
	if trimPath(tokens[0]) == "sudo" {
		tokens = tokens[1:]
		for len(tokens) > 0 && strings.HasPrefix(tokens[0], "-") {
			tokens = tokens[1:]
		}
	}
	if len(tokens) == 0 {
		return "", nil
	}
	base := trimPath(tokens[0])
	switch {
	case base == "systemctl":
		return types.CategoryService, operandsFrom(tokens, 2)
	case base == "service":
		// service <unit> <verb>: only the unit is an identifier.
		if len(tokens) > 1 && !strings.HasPrefix(tokens[1], "-") {
			return types.CategoryService, tokens[1:2]
		}
		return types.CategoryService, nil
	case containerCommands[base]:
		return types.CategoryContainer, operandsFrom(tokens, 2)
	case packageManagers[base]:
		return types.CategoryPackage, operandsFrom(tokens, 2)
	}
	return "", nil
}

// operandsFrom returns the non-flag tokens from position start onward.
func operandsFrom(tokens []string, start int) []string {
	if start >= len(tokens) {
		return nil
	}
	var out []string
	for _, tok := range tokens[start:] {
		if strings.HasPrefix(tok, "-") {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func trimPath(name string) string {
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
