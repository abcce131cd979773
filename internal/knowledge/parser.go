package knowledge

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
)

// The reference document is markdown with pipe tables under three
// headings. Sections are recognized by heading keywords rather than
// exact titles so a reordered or retitled revision of the document still
// parses. Each category degrades independently: a section that is absent
// or unusable is recorded in Missing() and the rest of the document
// still loads. Only a document yielding nothing at all is an error.

type section int

const (
	secNone section = iota
	secDiagnosis
	secOverride
	secNomenclature
)

// category names as reported by Missing().
const (
	CategoryDiagnoses    = "diagnosis applicability"
	CategoryOverrides    = "grading overrides"
	CategoryNomenclature = "nomenclature changes"
)

// ParseFile reads the reference document from disk. See Parse.
func ParseFile(path string, log *logger.Logger) (*KB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindKnowledgeParse, "opening reference document "+path, err)
	}
	defer f.Close()
	return Parse(f, log)
}

// Parse reads the structured reference document and builds the knowledge
// base. Malformed rows are skipped with a warning; see the package
// comment on degradation.
func Parse(r io.Reader, log *logger.Logger) (*KB, error) {
	if log == nil {
		log = logger.Nop()
	}

	buckets := map[section][]string{}
	cur := secNone

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			cur = classifyHeading(trimmed)
			continue
		}
		if cur != secNone {
			buckets[cur] = append(buckets[cur], trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindKnowledgeParse, "reading reference document", err)
	}

	kb := &KB{
		ruleIdx:  make(map[string]*DiagnosisRule),
		aliasIdx: make(map[string]string),
	}

	kb.rules = parseDiagnosisRows(tableRows(buckets[secDiagnosis]), log)
	for _, rule := range kb.rules {
		kb.ruleIdx[fold(rule.Name)] = rule
	}

	kb.overrides = parseOverrideRows(tableRows(buckets[secOverride]), log)

	kb.nomenclature = parseNomenclatureRows(tableRows(buckets[secNomenclature]), log)
	for _, entry := range kb.nomenclature {
		kb.aliasIdx[fold(entry.Obsolete)] = entry.Current
		if rule, ok := kb.ruleIdx[fold(entry.Current)]; ok {
			rule.Aliases = append(rule.Aliases, entry.Obsolete)
		}
	}

	if len(kb.rules) == 0 {
		kb.missing = append(kb.missing, CategoryDiagnoses)
	}
	if len(kb.overrides) == 0 {
		kb.missing = append(kb.missing, CategoryOverrides)
	}
	if len(kb.nomenclature) == 0 {
		kb.missing = append(kb.missing, CategoryNomenclature)
	}

	if len(kb.missing) == 3 {
		return nil, errs.New(errs.ErrKindKnowledgeParse,
			"reference document yielded no rules in any category")
	}
	for _, m := range kb.missing {
		log.Warnf("reference document has no usable %s section", m)
	}

	return kb, nil
}

// classifyHeading maps a markdown heading onto a section by keyword.
func classifyHeading(heading string) section {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "applicab") || strings.Contains(h, "diagnos"):
		return secDiagnosis
	case strings.Contains(h, "override") || strings.Contains(h, "grading"):
		return secOverride
	case strings.Contains(h, "nomenclature") || strings.Contains(h, "terminolog") ||
		strings.Contains(h, "renam"):
		return secNomenclature
	default:
		return secNone
	}
}

// tableRows extracts the data rows of the first pipe table in the given
// lines: the header row and separator rows are dropped.
func tableRows(lines []string) [][]string {
	var rows [][]string
	headerSeen := false
	for _, line := range lines {
		cells, ok := splitTableRow(line)
		if !ok {
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}
		if !headerSeen {
			headerSeen = true // header carries no data
			continue
		}
		rows = append(rows, cells)
	}
	return rows
}

// splitTableRow splits "| a | b |" into trimmed cells.
func splitTableRow(line string) ([]string, bool) {
	if !strings.HasPrefix(line, "|") {
		return nil, false
	}
	parts := strings.Split(line, "|")
	// Leading and trailing pipes produce empty first/last parts.
	if len(parts) >= 2 {
		parts = parts[1 : len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells, len(cells) > 0
}

// isSeparatorRow reports whether every cell is a markdown alignment rule
// like "---" or ":--:".
func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" {
			continue
		}
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func parseDiagnosisRows(rows [][]string, log *logger.Logger) []*DiagnosisRule {
	var rules []*DiagnosisRule
	for _, cells := range rows {
		if len(cells) < 2 || cells[0] == "" {
			log.Warnf("skipping malformed diagnosis row: %v", cells)
			continue
		}
		minAge, maxAge, err := parseAgeRange(cells[1])
		if err != nil {
			log.Warnf("skipping diagnosis %q: bad age range %q", cells[0], cells[1])
			continue
		}
		rule := &DiagnosisRule{
			Name:   cells[0],
			MinAge: minAge,
			MaxAge: maxAge,
		}
		if len(cells) > 2 {
			rule.TypicalSites = splitList(cells[2])
		}
		if len(cells) > 3 {
			rule.RequiredTests = splitList(cells[3])
		}
		rules = append(rules, rule)
	}
	return rules
}

func parseOverrideRows(rows [][]string, log *logger.Logger) []*OverrideRule {
	var rules []*OverrideRule
	for _, cells := range rows {
		if len(cells) < 2 || cells[0] == "" || cells[1] == "" {
			log.Warnf("skipping malformed override row: %v", cells)
			continue
		}
		rule := &OverrideRule{
			Triggers: splitList(cells[0]),
			Result:   cells[1],
			Priority: len(rules),
		}
		if len(cells) > 2 {
			rule.Rationale = cells[2]
		}
		if len(rule.Triggers) == 0 {
			log.Warnf("skipping override row with no triggers: %v", cells)
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func parseNomenclatureRows(rows [][]string, log *logger.Logger) []NomenclatureEntry {
	var entries []NomenclatureEntry
	for _, cells := range rows {
		if len(cells) < 2 || cells[0] == "" || cells[1] == "" {
			log.Warnf("skipping malformed nomenclature row: %v", cells)
			continue
		}
		entries = append(entries, NomenclatureEntry{
			Obsolete: cells[0],
			Current:  cells[1],
		})
	}
	return entries
}

// parseAgeRange understands "40-90", "40+", "0-17" and "any"/"".
func parseAgeRange(s string) (int, int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "any" || s == "all" {
		return UnknownAge, UnknownAge, nil
	}
	if strings.HasSuffix(s, "+") {
		min, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(s, "+")))
		if err != nil {
			return 0, 0, err
		}
		return min, UnknownAge, nil
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		min, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, 0, err
		}
		max, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, err
		}
		return min, max, nil
	}
	exact, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, err
	}
	return exact, exact, nil
}

// splitList splits a semicolon-delimited cell into trimmed entries.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
