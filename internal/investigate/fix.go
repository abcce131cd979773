package investigate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/medharbor/chartminer/internal/catalog"
)

// fixDateFormat analyzes the sampled values of the implicated field and
// rewrites the query with a parse chain that tolerates every shape found.
func (inv *Investigator) fixDateFormat(rep *FailureReport) {
	target, ok := firstSampledField(rep)
	if !ok {
		rep.Explanation = "no field values could be sampled; a repair needs live data"
		return
	}

	fa := AnalyzeDateFormats(target, rep.Samples[target.Key()])
	rep.Format = fa
	if len(fa.Formats) == 0 {
		rep.Explanation = fmt.Sprintf("values in %s match no known temporal shape", target.Key())
		return
	}

	expr := BuildDateExpr(target.Token(), fa.Formats, inv.opts.Dialect)
	rep.ProposedFix = expr
	rep.RewrittenQuery = rewriteToken(rep.QueryText, target.Token(), expr)

	tags := make([]string, len(fa.Formats))
	for i, f := range fa.Formats {
		tags[i] = f.Tag
	}
	rep.Explanation = fmt.Sprintf("column %s stores text dates in %d shape(s): %s; rewrote with a shape-tolerant parse chain",
		target.Key(), len(fa.Formats), strings.Join(tags, ", "))
	if n := len(fa.Unparsed); n > 0 {
		rep.Explanation += fmt.Sprintf(" (%d sampled value(s) matched nothing and will come back NULL)", n)
	}
}

// fixTypeMismatch wraps the implicated field in an explicit cast to the
// type the error message points at.
func (inv *Investigator) fixTypeMismatch(rep *FailureReport) {
	if len(rep.Fields) == 0 {
		rep.Explanation = "no catalog-backed field could be tied to the failing comparison"
		return
	}
	target := rep.Fields[0]
	if f, ok := firstSampledField(rep); ok {
		target = f
	}

	typ := castTargetFromError(rep.ErrorText)
	frag := fmt.Sprintf("CAST(%s AS %s)", target.Token(), typ)
	rep.ProposedFix = frag
	rep.RewrittenQuery = rewriteToken(rep.QueryText, target.Token(), frag)
	rep.Explanation = fmt.Sprintf("%s is compared against %s; wrapped it in an explicit cast",
		target.Key(), strings.ToLower(typ))
}

// fixUnknownColumn suggests the catalog's nearest column name. The
// resolved refs already include aliases whose table exists but whose
// column does not; failing that, a bare column named only in the error
// text can still be localized when the query touches a single table.
func (inv *Investigator) fixUnknownColumn(rep *FailureReport) {
	for _, f := range rep.Fields {
		if _, ok := inv.cat.Column(f.Table, f.Column); ok {
			continue
		}
		inv.suggestColumn(rep, f)
		return
	}

	col := unknownColumnIdent(rep.ErrorText)
	if col == "" {
		rep.Explanation = "error names no recoverable column"
		return
	}
	tables := tablesInQuery(rep.QueryText, inv.cat)
	if len(tables) != 1 {
		rep.Explanation = fmt.Sprintf("column %q not found and the query touches %d tables; cannot localize it", col, len(tables))
		return
	}
	inv.suggestColumn(rep, FieldRef{Table: tables[0], Column: col})
}

func (inv *Investigator) suggestColumn(rep *FailureReport, f FieldRef) {
	if len(rep.Fields) == 0 {
		rep.Fields = []FieldRef{f}
	}
	nearest, ok := inv.cat.NearestColumn(f.Table, f.Column)
	if !ok {
		rep.Explanation = fmt.Sprintf("table %s has no column %q and no close match", f.Table, f.Column)
		return
	}
	repl := nearest
	if f.Alias != "" {
		repl = f.Alias + "." + nearest
	}
	rep.ProposedFix = repl
	rep.RewrittenQuery = rewriteToken(rep.QueryText, f.Token(), repl)
	rep.Explanation = fmt.Sprintf("table %s has no column %q; nearest match is %q", f.Table, f.Column, nearest)
}

func firstSampledField(rep *FailureReport) (FieldRef, bool) {
	for _, f := range rep.Fields {
		if len(rep.Samples[f.Key()]) > 0 {
			return f, true
		}
	}
	return FieldRef{}, false
}

// rewriteToken replaces every word-bounded occurrence of the token. The
// replacement may itself contain the token; it is not rescanned.
func rewriteToken(query, token, replacement string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
	return re.ReplaceAllLiteralString(query, replacement)
}

// castTargets in match order. Longer names sit above their substrings so
// "double precision" is not reported as "double".
var castTargets = []struct{ needle, sql string }{
	{"double precision", "DOUBLE PRECISION"},
	{"character varying", "VARCHAR"},
	{"timestamp", "TIMESTAMP"},
	{"smallint", "SMALLINT"},
	{"bigint", "BIGINT"},
	{"integer", "INTEGER"},
	{"numeric", "NUMERIC"},
	{"decimal", "DECIMAL"},
	{"boolean", "BOOLEAN"},
	{"varchar", "VARCHAR"},
	{"double", "DOUBLE PRECISION"},
	{"float", "FLOAT"},
	{"real", "REAL"},
	{"text", "TEXT"},
	{"date", "DATE"},
	{"int", "INTEGER"},
}

// castTargetFromError picks the cast target from the error message. The
// rightmost type name wins: engines phrase conflicts as "<column type>
// <op> <literal type>" and the literal side is what the column must
// become.
func castTargetFromError(text string) string {
	best, bestPos := "", -1
	for _, t := range castTargets {
		re := regexp.MustCompile(`(?i)\b` + t.needle + `\b`)
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		if pos := locs[len(locs)-1][0]; pos > bestPos {
			best, bestPos = t.sql, pos
		}
	}
	if best == "" {
		return "DOUBLE PRECISION"
	}
	return best
}

var unknownColumnRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)column ["'` + "`" + `]?([\w.$]+)["'` + "`" + `]? (?:does not exist|cannot be resolved)`),
	regexp.MustCompile(`(?i)unknown column ["'` + "`" + `]?([\w.$]+)`),
	regexp.MustCompile(`(?i)no such column:? ["'` + "`" + `]?([\w.$]+)`),
}

// unknownColumnIdent pulls the offending column out of the error text,
// dropping any alias qualifier.
func unknownColumnIdent(errorText string) string {
	for _, re := range unknownColumnRes {
		if m := re.FindStringSubmatch(errorText); m != nil {
			ident := m[1]
			if i := strings.LastIndex(ident, "."); i >= 0 {
				ident = ident[i+1:]
			}
			return ident
		}
	}
	return ""
}

// tablesInQuery resolves the FROM/JOIN tables against the catalog.
func tablesInQuery(query string, cat *catalog.Catalog) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range parseAliases(query) {
		tbl, ok := cat.Table(t)
		if !ok {
			continue
		}
		if _, dup := seen[tbl.Name]; dup {
			continue
		}
		seen[tbl.Name] = struct{}{}
		out = append(out, tbl.Name)
	}
	sort.Strings(out)
	return out
}
