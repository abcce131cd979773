package catalog

import (
	"fmt"
	"strings"

	"github.com/medharbor/chartminer/internal/errs"
)

// Query synthesis. Identifiers come from the loaded catalog, never from
// callers, and the single value literal (the patient reference) is
// escaped, so the generated statements are safe to hand to any engine,
// including ones without placeholder support.

// CountQuery returns a statement counting the rows of table that belong
// to the given patient. The table must be patient-scoped.
func (c *Catalog) CountQuery(table, patientRef string) (string, error) {
	t, ok := c.Table(table)
	if !ok {
		return "", errs.New(errs.ErrKindNotFound, fmt.Sprintf("unknown table %q", table))
	}
	if t.PatientColumn == "" {
		return "", errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("table %q is not patient-scoped", t.Name))
	}

	lit := t.patientLiteral(patientRef)
	return fmt.Sprintf(`SELECT COUNT(*) AS %s FROM %s WHERE %s = %s`,
		quoteIdent("cnt"), quoteIdent(t.Name), quoteIdent(t.PatientColumn), quoteLiteral(lit)), nil
}

// SampleQuery returns a statement fetching up to limit distinct non-NULL
// values of one column, for failure investigation. Distinct values give
// the format census the widest view of the column for a given sample
// budget.
func (c *Catalog) SampleQuery(table, column string, limit int) (string, error) {
	t, ok := c.Table(table)
	if !ok {
		return "", errs.New(errs.ErrKindNotFound, fmt.Sprintf("unknown table %q", table))
	}
	col, ok := t.Column(column)
	if !ok {
		return "", errs.New(errs.ErrKindNotFound,
			fmt.Sprintf("unknown column %q in table %q", column, t.Name))
	}
	if limit < 1 {
		limit = 1
	}

	return fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d`,
		quoteIdent(col.Name), quoteIdent(t.Name), quoteIdent(col.Name), limit), nil
}

// patientLiteral reconciles the caller's patient reference with the
// table's reference style: a prefixed column gets "Patient/<id>", a bare
// column gets just the id, whichever spelling the caller handed in.
func (t *Table) patientLiteral(patientRef string) string {
	switch t.RefStyle {
	case RefPrefixed:
		if strings.Contains(patientRef, "/") {
			return patientRef
		}
		return "Patient/" + patientRef
	default:
		if i := strings.LastIndexByte(patientRef, '/'); i >= 0 {
			return patientRef[i+1:]
		}
		return patientRef
	}
}

// quoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// This safely handles reserved words and mixed-case names.
// Note: MySQL also accepts double-quoted identifiers when ANSI mode is on,
// but both drivers work correctly with this quoting style.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral renders a string literal with single quotes doubled.
func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
