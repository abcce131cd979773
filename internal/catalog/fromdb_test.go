package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/queryexec"
	"github.com/medharbor/chartminer/internal/testutil"
)

func introspectionRow(table, column, dataType, isNullable string) map[string]any {
	return map[string]any{
		"table_name":  table,
		"column_name": column,
		"data_type":   dataType,
		"is_nullable": isNullable,
	}
}

func TestFromExecutor(t *testing.T) {
	exec := &testutil.MockExecutor{
		ExecuteFn: func(_ context.Context, _ string) (*queryexec.Result, error) {
			return &queryexec.Result{
				Columns: []string{"table_name", "column_name", "data_type", "is_nullable"},
				Rows: []map[string]any{
					introspectionRow("pathology_reports", "id", "uuid", "NO"),
					introspectionRow("pathology_reports", "patient_id", "character varying", "NO"),
					introspectionRow("pathology_reports", "collected_date", "text", "YES"),
					introspectionRow("code_lookup", "code", "varchar", "NO"),
				},
			}, nil
		},
	}

	c, err := FromExecutor(context.Background(), exec, "public", logger.Nop())
	require.NoError(t, err)

	require.Len(t, exec.Calls, 1)
	assert.Contains(t, exec.Calls[0], "information_schema.columns")
	assert.Contains(t, exec.Calls[0], "'public'")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Tables)
	assert.Equal(t, 4, stats.Columns)

	col, ok := c.Column("pathology_reports", "collected_date")
	require.True(t, ok)
	assert.True(t, col.Nullable)
	assert.Equal(t, TypeText, col.Kind)

	// Scope inference runs on introspected catalogs too.
	pr, ok := c.Table("pathology_reports")
	require.True(t, ok)
	assert.Equal(t, "patient_id", pr.PatientColumn)
	assert.Equal(t, RefBare, pr.RefStyle)
	assert.Equal(t, []string{"pathology_reports"}, c.PatientScopedTables())
}

func TestFromExecutor_ExecuteFails(t *testing.T) {
	exec := &testutil.MockExecutor{
		ExecuteFn: func(_ context.Context, _ string) (*queryexec.Result, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := FromExecutor(context.Background(), exec, "public", logger.Nop())
	require.Error(t, err)
	assert.True(t, errs.IsSchemaLoad(err))
}

func TestFromExecutor_EmptySchema(t *testing.T) {
	exec := &testutil.MockExecutor{}

	_, err := FromExecutor(context.Background(), exec, "missing", logger.Nop())
	require.Error(t, err)
	assert.True(t, errs.IsSchemaLoad(err))
	assert.Contains(t, err.Error(), "missing")
}

func TestFromExecutor_SkipsBlankRows(t *testing.T) {
	exec := &testutil.MockExecutor{
		ExecuteFn: func(_ context.Context, _ string) (*queryexec.Result, error) {
			return &queryexec.Result{
				Rows: []map[string]any{
					introspectionRow("notes", "patient_id", "varchar", "NO"),
					introspectionRow("", "orphan", "text", "YES"),
				},
			}, nil
		},
	}

	c, err := FromExecutor(context.Background(), exec, "public", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stats().SkippedRows)
	assert.Equal(t, 1, c.Stats().Tables)
}
