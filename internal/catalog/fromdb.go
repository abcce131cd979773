package catalog

import (
	"context"
	"fmt"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/queryexec"
)

// FromExecutor builds a catalog by introspecting information_schema
// through the given executor, for deployments that have no CSV export of
// the warehouse schema. Postgres callers typically pass "public"; MySQL
// callers pass the database name.
//
// Introspection is expensive on large warehouses; load once and reuse.
func FromExecutor(ctx context.Context, exec queryexec.Executor, schemaName string, log *logger.Logger) (*Catalog, error) {
	if log == nil {
		log = logger.Nop()
	}

	query := fmt.Sprintf(`SELECT table_name, column_name, data_type, is_nullable `+
		`FROM information_schema.columns WHERE table_schema = %s `+
		`ORDER BY table_name, ordinal_position`, quoteLiteral(schemaName))

	res, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindSchemaLoad, "introspecting information_schema", err)
	}

	c := &Catalog{
		tables: make(map[string]*Table),
		log:    log,
	}

	for _, row := range res.Rows {
		table, _ := queryexec.Stringify(row["table_name"])
		column, _ := queryexec.Stringify(row["column_name"])
		declared, _ := queryexec.Stringify(row["data_type"])
		isNullable, _ := queryexec.Stringify(row["is_nullable"])
		if table == "" || column == "" {
			c.skippedRows++
			continue
		}

		c.addColumn(&Column{
			Table:        table,
			Name:         column,
			DeclaredType: declared,
			Kind:         normalizeType(declared),
			Nullable:     parseNullable("", isNullable),
		})
	}

	if len(c.tables) == 0 {
		return nil, errs.New(errs.ErrKindSchemaLoad,
			fmt.Sprintf("information_schema has no columns for schema %q", schemaName))
	}

	c.finalize()
	log.Infof("introspected %d tables from schema %q", len(c.tables), schemaName)
	return c, nil
}
