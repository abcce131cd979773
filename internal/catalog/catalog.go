// Package catalog holds the warehouse schema description the reasoning
// core plans against: which tables exist, their columns and types, which
// tables carry patient-scoped rows, and how those rows reference the
// patient. The catalog is loaded once from a CSV schema export (or live
// from information_schema) and is immutable afterwards, so every lookup
// is safe for concurrent use.
package catalog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
)

// TypeKind is the normalized category of a column's declared type.
type TypeKind int

const (
	TypeOther TypeKind = iota
	TypeText
	TypeNumber
	TypeTime
	TypeBool
	TypeBinary
)

func (k TypeKind) String() string {
	switch k {
	case TypeText:
		return "text"
	case TypeNumber:
		return "number"
	case TypeTime:
		return "time"
	case TypeBool:
		return "bool"
	case TypeBinary:
		return "binary"
	default:
		return "other"
	}
}

// RefStyle says how a patient-scoped table's rows point at the patient.
type RefStyle int

const (
	// RefBare means the patient column holds the raw identifier ("1077").
	RefBare RefStyle = iota
	// RefPrefixed means the column holds a typed reference ("Patient/1077").
	RefPrefixed
)

// Column describes one column of one table.
type Column struct {
	Table        string
	Name         string
	DeclaredType string // as exported, e.g. "varchar(255)"
	Kind         TypeKind
	Nullable     bool
	Description  string
}

// Table describes one table and its columns in export order.
type Table struct {
	Name    string
	Columns []*Column

	// PatientColumn is the column that scopes rows to a patient,
	// or "" when the table is not patient-scoped.
	PatientColumn string
	RefStyle      RefStyle

	colIdx map[string]*Column // lower(name) → column
}

// Column returns the named column, case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.colIdx[strings.ToLower(name)]
	return c, ok
}

// ColumnNames returns the column names in export order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog is the loaded, immutable schema description.
type Catalog struct {
	tables map[string]*Table // lower(name) → table
	names  []string          // original table names, sorted
	log    *logger.Logger

	skippedRows int
}

// Stats reports what the loader accepted and rejected.
type Stats struct {
	Tables      int
	Columns     int
	SkippedRows int
}

// requiredHeaders are the CSV columns every schema export must carry.
var requiredHeaders = []string{"table_name", "column_name", "data_type"}

// LoadFile reads a CSV schema description from disk. See Load.
func LoadFile(path string, log *logger.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindSchemaLoad, "opening schema description "+path, err)
	}
	defer f.Close()
	return Load(f, log)
}

// Load parses a CSV schema export. The export must have a header row with
// at least table_name, column_name and data_type; nullable and description
// are optional. Malformed data rows are skipped with a warning; a file
// that yields no usable rows at all is an ErrKindSchemaLoad error.
func Load(r io.Reader, log *logger.Logger) (*Catalog, error) {
	if log == nil {
		log = logger.Nop()
	}

	br := bufio.NewReaderSize(r, 64*1024)

	// Skip UTF-8 BOM if present.
	if bom, err := br.Peek(3); err == nil && len(bom) >= 3 &&
		bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindSchemaLoad, "schema description has no header row", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range requiredHeaders {
		if _, ok := colIdx[req]; !ok {
			return nil, errs.New(errs.ErrKindSchemaLoad,
				fmt.Sprintf("schema description is missing required column %q", req))
		}
	}

	c := &Catalog{
		tables: make(map[string]*Table),
		log:    log,
	}

	rowNum := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			c.skippedRows++
			log.Warnf("schema description row %d unreadable: %v", rowNum, err)
			continue
		}

		field := func(name string) string {
			idx, ok := colIdx[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		table := field("table_name")
		column := field("column_name")
		declared := field("data_type")
		if table == "" || column == "" {
			c.skippedRows++
			log.Warnf("schema description row %d has empty table or column name, skipping", rowNum)
			continue
		}

		c.addColumn(&Column{
			Table:        table,
			Name:         column,
			DeclaredType: declared,
			Kind:         normalizeType(declared),
			Nullable:     parseNullable(field("nullable"), field("is_nullable")),
			Description:  field("description"),
		})
	}

	if len(c.tables) == 0 {
		return nil, errs.New(errs.ErrKindSchemaLoad, "schema description contains no usable rows")
	}

	c.finalize()
	return c, nil
}

// addColumn inserts a column, replacing an earlier duplicate (last wins).
func (c *Catalog) addColumn(col *Column) {
	key := strings.ToLower(col.Table)
	t, ok := c.tables[key]
	if !ok {
		t = &Table{
			Name:   col.Table,
			colIdx: make(map[string]*Column),
		}
		c.tables[key] = t
	}

	colKey := strings.ToLower(col.Name)
	if prev, dup := t.colIdx[colKey]; dup {
		c.log.Warnf("duplicate schema row for %s.%s, keeping the later one", col.Table, col.Name)
		for i, existing := range t.Columns {
			if existing == prev {
				t.Columns[i] = col
				break
			}
		}
		t.colIdx[colKey] = col
		return
	}

	t.Columns = append(t.Columns, col)
	t.colIdx[colKey] = col
}

// finalize computes the derived views: sorted table names and per-table
// patient scoping.
func (c *Catalog) finalize() {
	c.names = c.names[:0]
	for _, t := range c.tables {
		t.PatientColumn, t.RefStyle = detectPatientColumn(t)
		c.names = append(c.names, t.Name)
	}
	sort.Strings(c.names)
}

// Table returns the named table, case-insensitively.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// Column returns the named column of the named table, case-insensitively.
func (c *Catalog) Column(table, column string) (*Column, bool) {
	t, ok := c.Table(table)
	if !ok {
		return nil, false
	}
	return t.Column(column)
}

// TableNames returns all table names, sorted.
func (c *Catalog) TableNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// PatientScopedTables returns the sorted names of every table whose rows
// are scoped to a patient. The result is deterministic: the same catalog
// always yields the same list.
func (c *Catalog) PatientScopedTables() []string {
	var out []string
	for _, name := range c.names {
		t, _ := c.Table(name)
		if t.PatientColumn != "" {
			out = append(out, name)
		}
	}
	return out
}

// Stats reports table, column and skipped-row counts for logging.
func (c *Catalog) Stats() Stats {
	s := Stats{Tables: len(c.tables), SkippedRows: c.skippedRows}
	for _, t := range c.tables {
		s.Columns += len(t.Columns)
	}
	return s
}

// parseNullable accepts both export spellings: a dedicated "nullable"
// column (true/false) or information_schema style "is_nullable" (YES/NO).
func parseNullable(nullable, isNullable string) bool {
	v := nullable
	if v == "" {
		v = isNullable
	}
	switch strings.ToLower(v) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}
