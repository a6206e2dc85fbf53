// Package scapeid canonicalizes the evaluator names accepted on the command
// line and in config files.
package scapeid

import "strings"

// Normalize lowercases name, folds separators to dashes and resolves known
// aliases. Unknown names come back normalized but otherwise unchanged.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	stripped := strings.Trim(strings.TrimPrefix(normalized, "scape-"), "-")
	if stripped != "" && stripped != normalized {
		candidates = append(candidates, stripped)
	}
	for _, c := range []string{stripped, normalized} {
		if trimmed := strings.TrimSuffix(c, "-sim"); trimmed != c && trimmed != "" {
			candidates = append(candidates, trimmed)
		}
	}
	return candidates
}

func canonicalName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "-", "") {
	case "sphere", "quadratic":
		return "sphere", true
	case "cartpolelite", "cartpole", "polebalancing":
		return "cart-pole-lite", true
	case "xor":
		return "xor", true
	case "regressionmimic", "mimic":
		return "regression-mimic", true
	default:
		return "", false
	}
}
