// Package knowledge loads the structured domain reference document
// (diagnosis applicability, molecular grading overrides, nomenclature
// changes) and answers validation questions about extracted
// classifications. Validation is advisory: it produces warnings and
// suggestions, never hard failures, because the caller decides what to
// do with a suspect extraction.
package knowledge

import (
	"fmt"
	"strings"
)

// DiagnosisRule captures when a diagnosis is applicable: the age band it
// is typically seen in, its typical sites, and the molecular tests a
// classification needs to stand on.
type DiagnosisRule struct {
	Name          string
	Aliases       []string // obsolete names resolving to this rule
	MinAge        int      // inclusive years, -1 = unbounded
	MaxAge        int      // inclusive years, -1 = unbounded
	TypicalSites  []string
	RequiredTests []string
}

// OverrideRule maps molecular findings to a grading or classification
// override. A rule matches when any of its trigger markers appears in
// the patient's findings; rules are kept in definition order and the
// first match wins.
type OverrideRule struct {
	Triggers  []string
	Result    string // resulting grade or classification
	Rationale string
	Priority  int // definition order, 0 first
}

// NomenclatureEntry maps an obsolete term to its current replacement.
type NomenclatureEntry struct {
	Obsolete string
	Current  string
}

// OverrideMatch reports one override that applies to a classification.
type OverrideMatch struct {
	Trigger   string // the finding that fired
	Previous  string // classification before the override
	New       string // resulting grade or classification
	Rationale string
	Priority  int
}

// PatientContext carries what is known about the patient when a
// classification is validated. Zero values mean "unknown": age -1,
// empty site, nil slices.
type PatientContext struct {
	AgeYears           int
	Site               string
	TestsPerformed     []string
	Findings           []string // secondary / molecular findings
	TestsContradictory bool     // results obtained but non-elucidating
}

// UnknownAge is the AgeYears value meaning no age is on record.
const UnknownAge = -1

// ValidationResult is the full advisory verdict for one classification.
type ValidationResult struct {
	Input            string
	Canonical        string // resolved current name, "" when not in the reference
	Valid            bool
	Warnings         []string
	SuggestedRewrite string // set when the input is an obsolete term
	MissingTests     []string
	Override         *OverrideMatch  // winning override, nil when none applies
	Candidates       []OverrideMatch // every applicable override, priority order
	Suffix           string          // "NOS", "NEC" or ""
}

// KB is the parsed knowledge base. It is immutable after Parse and safe
// for concurrent use.
type KB struct {
	rules        []*DiagnosisRule
	ruleIdx      map[string]*DiagnosisRule // folded name → rule
	aliasIdx     map[string]string         // folded obsolete → current name
	overrides    []*OverrideRule
	nomenclature []NomenclatureEntry
	missing      []string // categories absent from the document
}

// Stats reports how much of the reference was usable.
type Stats struct {
	Diagnoses    int
	Overrides    int
	Nomenclature int
}

// Stats returns rule counts per category.
func (kb *KB) Stats() Stats {
	return Stats{
		Diagnoses:    len(kb.rules),
		Overrides:    len(kb.overrides),
		Nomenclature: len(kb.nomenclature),
	}
}

// Missing lists the categories the document did not yield: callers log
// these once at startup so a degraded knowledge base is visible.
func (kb *KB) Missing() []string {
	out := make([]string, len(kb.missing))
	copy(out, kb.missing)
	return out
}

// Lookup resolves a diagnosis name, following obsolete aliases. The
// returned canonical name differs from the input when an alias was
// followed. rule is nil when the name resolves but no applicability rule
// exists for it.
func (kb *KB) Lookup(name string) (canonical string, rule *DiagnosisRule, viaAlias bool) {
	folded := fold(name)
	if r, ok := kb.ruleIdx[folded]; ok {
		return r.Name, r, false
	}
	if current, ok := kb.aliasIdx[folded]; ok {
		return current, kb.ruleIdx[fold(current)], true
	}
	return "", nil, false
}

// ValidateClassification checks one extracted classification against the
// reference: existence, age and site plausibility, required molecular
// tests, nomenclature currency, grading overrides, and NOS/NEC suffixes.
//
// An implausible-but-known classification stays Valid with warnings; only
// a name absent from the reference entirely is marked invalid.
func (kb *KB) ValidateClassification(name string, pctx PatientContext) ValidationResult {
	res := ValidationResult{Input: name, Valid: true}

	canonical, rule, viaAlias := kb.Lookup(name)
	if canonical == "" {
		res.Valid = false
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%q is not in the diagnostic reference", name))
	} else {
		res.Canonical = canonical
		if viaAlias {
			res.SuggestedRewrite = canonical
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%q is superseded nomenclature; current term is %q", name, canonical))
		}
	}

	if rule != nil {
		if pctx.AgeYears != UnknownAge {
			if (rule.MinAge >= 0 && pctx.AgeYears < rule.MinAge) ||
				(rule.MaxAge >= 0 && pctx.AgeYears > rule.MaxAge) {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"%s at age %d is outside the typical range %s",
					canonical, pctx.AgeYears, formatAgeRange(rule.MinAge, rule.MaxAge)))
			}
		}
		if pctx.Site != "" && len(rule.TypicalSites) > 0 && !siteMatches(pctx.Site, rule.TypicalSites) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"site %q is atypical for %s (typical: %s)",
				pctx.Site, canonical, strings.Join(rule.TypicalSites, "; ")))
		}
		for _, required := range rule.RequiredTests {
			if !testCovered(required, pctx.TestsPerformed) {
				res.MissingTests = append(res.MissingTests, required)
			}
		}
		if len(res.MissingTests) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"required molecular testing not on record: %s",
				strings.Join(res.MissingTests, "; ")))
		}
	}

	subject := name
	if canonical != "" {
		subject = canonical
	}
	res.Candidates = kb.CheckOverride(subject, pctx.Findings)
	if len(res.Candidates) > 0 {
		res.Override = &res.Candidates[0]
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"molecular finding %q overrides grading: %s",
			res.Override.Trigger, res.Override.New))
	}

	performed := len(pctx.TestsPerformed) > 0 && len(res.MissingTests) == 0
	res.Suffix = kb.SuggestSuffix(name, performed, pctx.TestsContradictory)

	return res
}

// CheckOverride returns every grading override applicable to the given
// classification and findings, in rule-definition order. The first
// element is the authoritative one; the rest exist so callers can see
// competing candidates. Empty findings never match anything.
func (kb *KB) CheckOverride(name string, findings []string) []OverrideMatch {
	if len(findings) == 0 {
		return nil
	}

	var matches []OverrideMatch
	for _, rule := range kb.overrides {
		for _, trigger := range rule.Triggers {
			if found, ok := findingMatches(trigger, findings); ok {
				matches = append(matches, OverrideMatch{
					Trigger:   found,
					Previous:  name,
					New:       rule.Result,
					Rationale: rule.Rationale,
					Priority:  rule.Priority,
				})
				break // one match per rule
			}
		}
	}
	return matches
}

// SuggestSuffix recommends the classification suffix mandated by the
// testing situation: "NOS" when the necessary molecular testing was not
// performed, "NEC" when testing was performed but the results contradict
// or fail to support the classification, "" when no suffix is needed or
// the name already carries one.
func (kb *KB) SuggestSuffix(name string, testingPerformed, resultsContradictory bool) string {
	folded := fold(name)
	if strings.HasSuffix(folded, ", nos") || strings.HasSuffix(folded, " nos") ||
		strings.HasSuffix(folded, ", nec") || strings.HasSuffix(folded, " nec") {
		return ""
	}
	if testingPerformed && resultsContradictory {
		return "NEC"
	}
	if !testingPerformed {
		return "NOS"
	}
	return ""
}

// --- matching helpers ---

// fold normalizes names for lookup: case and surrounding space.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// containsFold reports whether either string contains the other,
// case-insensitively. Reference terms and chart terms rarely agree on
// exact wording, so containment in both directions is the usable notion
// of equality here.
func containsFold(a, b string) bool {
	fa, fb := fold(a), fold(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

func siteMatches(site string, typical []string) bool {
	for _, t := range typical {
		if containsFold(site, t) {
			return true
		}
	}
	return false
}

func testCovered(required string, performed []string) bool {
	for _, p := range performed {
		if containsFold(required, p) {
			return true
		}
	}
	return false
}

// findingMatches returns the first finding that matches the trigger.
func findingMatches(trigger string, findings []string) (string, bool) {
	for _, f := range findings {
		if containsFold(trigger, f) {
			return f, true
		}
	}
	return "", false
}

func formatAgeRange(min, max int) string {
	switch {
	case min >= 0 && max >= 0:
		return fmt.Sprintf("%d-%d", min, max)
	case min >= 0:
		return fmt.Sprintf("%d+", min)
	case max >= 0:
		return fmt.Sprintf("0-%d", max)
	default:
		return "any"
	}
}
