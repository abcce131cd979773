package investigate

import (
	"regexp"
	"strings"

	"github.com/medharbor/chartminer/internal/catalog"
)

// Field resolution is lexical: regexes over the statement text, anchored
// to the catalog, instead of a SQL parser. That covers the flat
// SELECT ... FROM ... JOIN ... WHERE shape extraction queries take.
// Statements with subqueries or multiple statements are declared
// unresolvable rather than guessed at.

var (
	fromJoinRe  = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?([A-Za-z_][\w$]*)"?(?:\s+(?:as\s+)?([A-Za-z_][\w$]*))?`)
	qualifiedRe = regexp.MustCompile(`\b([A-Za-z_]\w*)\.([A-Za-z_]\w*)\b`)
	subqueryRe  = regexp.MustCompile(`(?i)\(\s*select\b`)
)

// aliasStopwords are keywords that can trail a table name in the FROM
// clause and must not be mistaken for an alias.
var aliasStopwords = map[string]struct{}{
	"where": {}, "on": {}, "left": {}, "right": {}, "inner": {}, "outer": {},
	"full": {}, "cross": {}, "join": {}, "group": {}, "order": {}, "limit": {},
	"having": {}, "union": {}, "select": {}, "set": {}, "using": {},
	"natural": {}, "and": {}, "or": {}, "not": {}, "as": {}, "when": {},
	"then": {}, "else": {}, "end": {}, "offset": {}, "fetch": {},
}

type rawRef struct {
	alias  string
	column string
	depth  int // paren nesting at the ref, >0 means function-wrapped
}

// lexScan walks the statement once, recording paren depth and whether
// each byte sits inside a single-quoted literal. A doubled quote inside
// a literal re-enters string mode on the next character, which keeps the
// net effect correct.
func lexScan(s string) (depths []int, inString []bool) {
	depths = make([]int, len(s))
	inString = make([]bool, len(s))
	depth := 0
	inStr := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case inStr:
			if c == '\'' {
				inStr = false
			}
			inString[i] = true
		case c == '\'':
			inStr = true
			inString[i] = true
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		}
		depths[i] = depth
	}
	return depths, inString
}

// firstBareSemicolon returns the index of the first semicolon outside a
// string literal, or -1.
func firstBareSemicolon(s string, inString []bool) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ';' && !inString[i] {
			return i
		}
	}
	return -1
}

// parseAliases builds alias → table from the FROM and JOIN clauses.
// Tables are also mapped to themselves so table-qualified refs resolve.
func parseAliases(query string) map[string]string {
	aliases := map[string]string{}
	for _, m := range fromJoinRe.FindAllStringSubmatch(query, -1) {
		table := m[1]
		aliases[strings.ToLower(table)] = table
		if alias := m[2]; alias != "" {
			if _, stop := aliasStopwords[strings.ToLower(alias)]; !stop {
				aliases[strings.ToLower(alias)] = table
			}
		}
	}
	return aliases
}

// qualifiedRefs extracts every alias.column token outside string
// literals, tagged with its paren depth.
func qualifiedRefs(query string, depths []int, inString []bool) []rawRef {
	var refs []rawRef
	for _, idx := range qualifiedRe.FindAllStringSubmatchIndex(query, -1) {
		start := idx[0]
		if inString[start] {
			continue
		}
		refs = append(refs, rawRef{
			alias:  query[idx[2]:idx[3]],
			column: query[idx[4]:idx[5]],
			depth:  depths[start],
		})
	}
	return refs
}

// ResolveFields works out which catalog-backed fields a failing query
// implicates. It prefers function-wrapped refs (the usual failure site
// for parse and cast errors), narrows by any column the error text
// names, and reports resolvable=false when the statement shape defeats
// lexical analysis.
func ResolveFields(query, errorText string, cat *catalog.Catalog) ([]FieldRef, bool) {
	depths, inString := lexScan(query)

	if subqueryRe.MatchString(query) {
		return nil, false
	}
	if i := firstBareSemicolon(query, inString); i >= 0 && strings.TrimSpace(query[i+1:]) != "" {
		return nil, false
	}

	aliases := parseAliases(query)

	var wrapped, all []FieldRef
	for _, r := range qualifiedRefs(query, depths, inString) {
		table, ok := resolveAlias(r.alias, aliases, cat)
		if !ok {
			continue
		}
		f := FieldRef{Alias: r.alias, Table: table, Column: r.column}
		all = append(all, f)
		if r.depth > 0 {
			wrapped = append(wrapped, f)
		}
	}

	cands := wrapped
	if len(cands) == 0 {
		cands = all
	}
	if narrowed := narrowByError(cands, errorText); len(narrowed) > 0 {
		cands = narrowed
	}
	return dedupeRefs(cands), true
}

// resolveAlias maps a qualifier to a catalog table: declared aliases
// first, then the qualifier as a table name in its own right. Refs whose
// table the catalog does not know are dropped; nothing downstream can
// sample or repair them.
func resolveAlias(alias string, aliases map[string]string, cat *catalog.Catalog) (string, bool) {
	if cat == nil {
		return "", false
	}
	name := alias
	if t, ok := aliases[strings.ToLower(alias)]; ok {
		name = t
	}
	if tbl, ok := cat.Table(name); ok {
		return tbl.Name, true
	}
	return "", false
}

// narrowByError keeps only refs whose column the error message names.
func narrowByError(refs []FieldRef, errorText string) []FieldRef {
	if errorText == "" {
		return nil
	}
	var kept []FieldRef
	for _, f := range refs {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(f.Column) + `\b`)
		if re.MatchString(errorText) {
			kept = append(kept, f)
		}
	}
	return kept
}

func dedupeRefs(refs []FieldRef) []FieldRef {
	seen := map[string]struct{}{}
	var out []FieldRef
	for _, f := range refs {
		if _, dup := seen[f.Token()]; dup {
			continue
		}
		seen[f.Token()] = struct{}{}
		out = append(out, f)
	}
	return out
}
