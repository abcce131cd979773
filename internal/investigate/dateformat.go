package investigate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the SQL flavor repair fragments are rendered in. It
// matches the engine the failing extraction queries were authored for,
// not necessarily the executor used for sampling.
type Dialect string

const (
	DialectTrino    Dialect = "trino"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// dateShape is one recognizable temporal value format. The anchored
// pattern does double duty: shape detection over sampled values in Go,
// and the CASE guard in postgres/mysql repair fragments, so it sticks to
// the regex subset all three engines share.
type dateShape struct {
	tag         string
	pattern     *regexp.Regexp
	specificity int      // parse order in fallback chains, higher first
	layouts     []string // Go layouts; empty for epoch shapes
	epoch       string   // "s", "ms", or ""

	trino    string // expression templates, {col} placeholder
	postgres string
	mysql    string
}

var dateShapes = []dateShape{
	{
		tag:         "epoch-millis",
		pattern:     regexp.MustCompile(`^[0-9]{13}$`),
		specificity: 70,
		epoch:       "ms",
		trino:       "from_unixtime(CAST({col} AS BIGINT) / 1000)",
		postgres:    "to_timestamp(({col})::bigint / 1000.0)",
		mysql:       "FROM_UNIXTIME(CAST({col} AS UNSIGNED) / 1000)",
	},
	{
		tag:         "epoch-seconds",
		pattern:     regexp.MustCompile(`^[0-9]{10}$`),
		specificity: 65,
		epoch:       "s",
		trino:       "from_unixtime(CAST({col} AS BIGINT))",
		postgres:    "to_timestamp(({col})::bigint)",
		mysql:       "FROM_UNIXTIME(CAST({col} AS UNSIGNED))",
	},
	{
		tag:         "datetime-offset",
		pattern:     regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}(:[0-9]{2}([.][0-9]+)?)?(Z|[+-][0-9]{2}:?[0-9]{2})$`),
		specificity: 60,
		layouts: []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05Z0700",
			"2006-01-02T15:04Z07:00",
		},
		trino:    "from_iso8601_timestamp({col})",
		postgres: "({col})::timestamptz",
		mysql:    "STR_TO_DATE(REPLACE(SUBSTRING({col}, 1, 19), 'T', ' '), '%Y-%m-%d %H:%i:%s')",
	},
	{
		tag:         "datetime-no-offset",
		pattern:     regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}(:[0-9]{2}([.][0-9]+)?)?$`),
		specificity: 55,
		layouts: []string{
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04",
		},
		trino:    "from_iso8601_timestamp({col})",
		postgres: "({col})::timestamp",
		mysql:    "STR_TO_DATE(REPLACE(SUBSTRING({col}, 1, 19), 'T', ' '), '%Y-%m-%d %H:%i:%s')",
	},
	{
		tag:         "datetime-space",
		pattern:     regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}(:[0-9]{2}([.][0-9]+)?)?$`),
		specificity: 50,
		layouts: []string{
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04",
		},
		trino:    "from_iso8601_timestamp(replace({col}, ' ', 'T'))",
		postgres: "({col})::timestamp",
		mysql:    "STR_TO_DATE(SUBSTRING({col}, 1, 19), '%Y-%m-%d %H:%i:%s')",
	},
	{
		tag:         "date-only",
		pattern:     regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`),
		specificity: 40,
		layouts:     []string{"2006-01-02"},
		trino:       "date_parse({col}, '%Y-%m-%d')",
		postgres:    "to_timestamp({col}, 'YYYY-MM-DD')",
		mysql:       "STR_TO_DATE({col}, '%Y-%m-%d')",
	},
	{
		tag:         "date-slash",
		pattern:     regexp.MustCompile(`^[0-9]{1,2}/[0-9]{1,2}/[0-9]{4}$`),
		specificity: 30,
		layouts:     []string{"01/02/2006", "1/2/2006"},
		trino:       "date_parse({col}, '%m/%d/%Y')",
		postgres:    "to_timestamp({col}, 'MM/DD/YYYY')",
		mysql:       "STR_TO_DATE({col}, '%m/%d/%Y')",
	},
}

func shapeByTag(tag string) (dateShape, bool) {
	for _, s := range dateShapes {
		if s.tag == tag {
			return s, true
		}
	}
	return dateShape{}, false
}

// parseValue reports whether the value actually parses under this shape,
// not just whether it matches the pattern.
func (s dateShape) parseValue(v string) bool {
	if s.epoch != "" {
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	}
	for _, layout := range s.layouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// AnalyzeDateFormats classifies sampled values by shape. Formats come
// back ordered by frequency, most common first, with ties broken by
// specificity so the result is stable.
func AnalyzeDateFormats(field FieldRef, samples []string) *FormatAnalysis {
	fa := &FormatAnalysis{Field: field}

	counts := map[string]int{}
	examples := map[string]string{}
	for _, raw := range samples {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		matched := false
		for _, s := range dateShapes {
			if s.pattern.MatchString(v) {
				counts[s.tag]++
				if _, ok := examples[s.tag]; !ok {
					examples[s.tag] = v
				}
				matched = true
				break
			}
		}
		if !matched {
			fa.Unparsed = append(fa.Unparsed, v)
		}
	}

	for _, s := range dateShapes {
		if n := counts[s.tag]; n > 0 {
			fa.Formats = append(fa.Formats, FormatCount{Tag: s.tag, Count: n, Example: examples[s.tag]})
		}
	}
	sort.SliceStable(fa.Formats, func(i, j int) bool {
		return fa.Formats[i].Count > fa.Formats[j].Count
	})
	fa.Mixed = len(fa.Formats) > 1
	return fa
}

// BuildDateExpr renders a parse expression for the column that tolerates
// every detected shape, most specific first. Trino gets a
// COALESCE(TRY(...)) chain; postgres and mysql get a CASE whose guards
// reuse the detection patterns, so junk values fall through to NULL
// instead of aborting the query.
func BuildDateExpr(col string, formats []FormatCount, dialect Dialect) string {
	detected := map[string]bool{}
	for _, f := range formats {
		detected[f.Tag] = true
	}
	var shapes []dateShape
	for _, s := range dateShapes {
		if detected[s.tag] {
			shapes = append(shapes, s)
		}
	}
	if len(shapes) == 0 {
		return ""
	}
	sort.SliceStable(shapes, func(i, j int) bool {
		return shapes[i].specificity > shapes[j].specificity
	})

	switch dialect {
	case DialectPostgres:
		return caseChain(col, shapes, "~", func(s dateShape) string { return s.postgres })
	case DialectMySQL:
		return caseChain(col, shapes, "REGEXP", func(s dateShape) string { return s.mysql })
	default:
		exprs := make([]string, len(shapes))
		for i, s := range shapes {
			exprs[i] = "TRY(" + expand(s.trino, col) + ")"
		}
		if len(exprs) == 1 {
			return exprs[0]
		}
		return "COALESCE(" + strings.Join(exprs, ", ") + ")"
	}
}

func caseChain(col string, shapes []dateShape, matchOp string, tmpl func(dateShape) string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, s := range shapes {
		b.WriteString(" WHEN ")
		b.WriteString(col)
		b.WriteString(" ")
		b.WriteString(matchOp)
		b.WriteString(" '")
		b.WriteString(s.pattern.String())
		b.WriteString("' THEN ")
		b.WriteString(expand(tmpl(s), col))
	}
	b.WriteString(" END")
	return b.String()
}

func expand(tmpl, col string) string {
	return strings.ReplaceAll(tmpl, "{col}", col)
}
