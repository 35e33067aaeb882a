package features

import (
	"sort"
	"strings"
)

// Category tables. They are never mutated after package initialisation; the
// accessors below hand out copies.
var (
	threatTypeScores = map[string]float64{
		"malware":       0.2,
		"ddos":          0.4,
		"phishing":      0.6,
		"brute_force":   0.8,
		"sql_injection": 1.0,
	}

	attackTypeScores = map[string]float64{
		"ddos":          0.2,
		"brute_force":   0.4,
		"sql_injection": 0.6,
		"xss":           0.8,
		"rce":           1.0,
	}

	highRiskCountries   = map[string]struct{}{"CN": {}, "RU": {}, "KP": {}, "IR": {}}
	mediumRiskCountries = map[string]struct{}{"BR": {}, "IN": {}, "PK": {}, "NG": {}}

	highSignalAttacks = map[string]struct{}{"brute_force": {}, "ddos": {}}
)

const (
	highCountryRisk   = 1.0
	mediumCountryRisk = 0.5
)

// EncodeThreatType returns the table score for a threat category, 0 when unknown.
func EncodeThreatType(name string) float64 {
	return threatTypeScores[normalizeCategory(name)]
}

// EncodeAttackType returns the table score for an attack category, 0 when unknown.
func EncodeAttackType(name string) float64 {
	return attackTypeScores[normalizeCategory(name)]
}

// EncodeCountry returns 1.0 for high-risk, 0.5 for medium-risk and 0 for any
// other ISO country code.
func EncodeCountry(code string) float64 {
	c := normalizeCountry(code)
	if _, ok := highRiskCountries[c]; ok {
		return highCountryRisk
	}
	if _, ok := mediumRiskCountries[c]; ok {
		return mediumCountryRisk
	}
	return 0
}

// IsHighSignalAttack reports whether an attack category counts toward the
// high-signal aggregate (brute force, DDoS).
func IsHighSignalAttack(name string) bool {
	_, ok := highSignalAttacks[normalizeCategory(name)]
	return ok
}

func ThreatTypes() []string         { return sortedKeys(threatTypeScores) }
func AttackTypes() []string         { return sortedKeys(attackTypeScores) }
func HighRiskCountries() []string   { return sortedSet(highRiskCountries) }
func MediumRiskCountries() []string { return sortedSet(mediumRiskCountries) }

// normalizeCategory lowercases and folds spaces and dashes into underscores so
// "Brute Force", "brute-force" and "brute_force" share one table entry.
func normalizeCategory(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
