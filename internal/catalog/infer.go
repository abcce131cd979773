package catalog

import (
	"strings"
)

// patientColumnVocab lists column names that scope a row to a patient,
// in precedence order. The first hit wins so a table carrying both
// subject_reference and a generic "patient" text column binds to the
// reference column.
var patientColumnVocab = []string{
	"patient_id",
	"subject_id",
	"person_id",
	"patient_reference",
	"subject_reference",
	"patient_ref",
	"subject_ref",
	"mrn",
	"patient",
	"subject",
}

// detectPatientColumn finds the column that scopes t's rows to a patient
// and how that column spells the reference. Returns "" when the table has
// no such column.
func detectPatientColumn(t *Table) (string, RefStyle) {
	for _, want := range patientColumnVocab {
		if col, ok := t.Column(want); ok {
			return col.Name, refStyleOf(col.Name)
		}
	}
	return "", RefBare
}

// refStyleOf infers the reference spelling from the column name:
// *_reference and *_ref columns hold typed references ("Patient/1077"),
// identifier columns hold the bare id.
func refStyleOf(name string) RefStyle {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "_reference") || strings.HasSuffix(lower, "_ref") {
		return RefPrefixed
	}
	return RefBare
}

// normalizeType maps a declared SQL type to its TypeKind. Length and
// precision suffixes are ignored: varchar(255) normalizes like varchar.
func normalizeType(declared string) TypeKind {
	base := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "text", "varchar", "char", "character", "character varying",
		"string", "nvarchar", "clob", "uuid", "json", "jsonb", "enum":
		return TypeText
	case "int", "integer", "smallint", "bigint", "tinyint", "mediumint",
		"decimal", "numeric", "real", "float", "double", "double precision",
		"money", "serial", "bigserial":
		return TypeNumber
	case "date", "time", "datetime", "timestamp", "timestamptz",
		"timestamp with time zone", "timestamp without time zone", "interval":
		return TypeTime
	case "bool", "boolean", "bit":
		return TypeBool
	case "bytea", "blob", "binary", "varbinary", "longblob", "mediumblob":
		return TypeBinary
	default:
		return TypeOther
	}
}

// temporalNameParts mark columns that hold dates regardless of declared
// type. Warehouses routinely export timestamps as text, so the name
// carries signal the type does not.
var (
	temporalSuffixes = []string{"_date", "_at", "_time", "_on", "_dt", "_datetime", "_timestamp"}
	temporalExact    = []string{"date", "dob", "dos", "datetime", "timestamp"}
)

// looksTemporal reports whether a column name alone suggests a date.
func looksTemporal(name string) bool {
	lower := strings.ToLower(name)
	for _, exact := range temporalExact {
		if lower == exact {
			return true
		}
	}
	for _, suffix := range temporalSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.HasPrefix(lower, "date_")
}

// DateColumns returns the columns of the named table likely to hold
// dates, by declared type or by name. Order follows the export order.
func (c *Catalog) DateColumns(table string) []string {
	t, ok := c.Table(table)
	if !ok {
		return nil
	}
	var out []string
	for _, col := range t.Columns {
		if col.Kind == TypeTime || looksTemporal(col.Name) {
			out = append(out, col.Name)
		}
	}
	return out
}

// NearestColumn returns the column of the named table closest to name by
// edit distance, for "did you mean" suggestions after an unknown-column
// failure. The second return is false when the table is unknown or no
// column is close enough to plausibly be a typo.
func (c *Catalog) NearestColumn(table, name string) (string, bool) {
	t, ok := c.Table(table)
	if !ok {
		return "", false
	}
	lower := strings.ToLower(name)
	if col, ok := t.Column(lower); ok {
		return col.Name, true
	}

	// Accept at most one edit per three characters, always at least one.
	budget := len(lower) / 3
	if budget < 1 {
		budget = 1
	}

	best, bestDist := "", budget+1
	for _, col := range t.Columns {
		d := editDistance(lower, strings.ToLower(col.Name))
		if d < bestDist || (d == bestDist && best != "" && col.Name < best) {
			best, bestDist = col.Name, d
		}
	}
	if bestDist > budget {
		return "", false
	}
	return best, true
}

// editDistance is the Levenshtein distance between a and b, two rows of
// the usual dynamic program kept at a time.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
