package investigate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDateFormats_MixedShapes(t *testing.T) {
	f := FieldRef{Alias: "d", Table: "diagnostic_reports", Column: "performed_at"}
	samples := []string{
		"2023-07-15", "2023-06-01", "2022-11-30",
		"2023-07-15T10:30:00Z", "2023-07-15T10:30:00+02:00",
		"1689413400",
		"not-a-date",
		"  ", // whitespace only, ignored
	}

	fa := AnalyzeDateFormats(f, samples)

	require.Len(t, fa.Formats, 3)
	assert.True(t, fa.Mixed)
	assert.Equal(t, FormatCount{Tag: "date-only", Count: 3, Example: "2023-07-15"}, fa.Formats[0])
	assert.Equal(t, FormatCount{Tag: "datetime-offset", Count: 2, Example: "2023-07-15T10:30:00Z"}, fa.Formats[1])
	assert.Equal(t, FormatCount{Tag: "epoch-seconds", Count: 1, Example: "1689413400"}, fa.Formats[2])
	assert.Equal(t, []string{"not-a-date"}, fa.Unparsed)
}

func TestAnalyzeDateFormats_SingleShape(t *testing.T) {
	fa := AnalyzeDateFormats(FieldRef{}, []string{"2023-07-15", "2023-07-16"})
	require.Len(t, fa.Formats, 1)
	assert.False(t, fa.Mixed)
	assert.Empty(t, fa.Unparsed)
}

func TestAnalyzeDateFormats_TieBrokenBySpecificity(t *testing.T) {
	fa := AnalyzeDateFormats(FieldRef{}, []string{"1689413400", "2023-07-15"})
	require.Len(t, fa.Formats, 2)
	assert.Equal(t, "epoch-seconds", fa.Formats[0].Tag)
	assert.Equal(t, "date-only", fa.Formats[1].Tag)
}

// Every shape's detection pattern and Go layouts must agree on values the
// pattern accepts.
func TestDateShapes_PatternAndParseAgree(t *testing.T) {
	values := map[string][]string{
		"epoch-millis":       {"1689413400123"},
		"epoch-seconds":      {"1689413400"},
		"datetime-offset":    {"2023-07-15T10:30:00Z", "2023-07-15T10:30:00.250+02:00", "2023-07-15T10:30:00+0200", "2023-07-15T10:30Z"},
		"datetime-no-offset": {"2023-07-15T10:30:00", "2023-07-15T10:30", "2023-07-15T10:30:00.5"},
		"datetime-space":     {"2023-07-15 10:30:00", "2023-07-15 10:30"},
		"date-only":          {"2023-07-15"},
		"date-slash":         {"07/15/2023", "7/15/2023"},
	}
	for tag, vals := range values {
		shape, ok := shapeByTag(tag)
		require.True(t, ok, tag)
		for _, v := range vals {
			assert.True(t, shape.pattern.MatchString(v), "%q should match %s", v, tag)
			assert.True(t, shape.parseValue(v), "%q should parse as %s", v, tag)
		}
	}
}

func TestDateShapes_Disjoint(t *testing.T) {
	// Each value must land on exactly one shape.
	values := []string{
		"1689413400123", "1689413400",
		"2023-07-15T10:30:00Z", "2023-07-15T10:30:00",
		"2023-07-15 10:30:00", "2023-07-15", "07/15/2023",
	}
	for _, v := range values {
		n := 0
		for _, s := range dateShapes {
			if s.pattern.MatchString(v) {
				n++
			}
		}
		assert.Equal(t, 1, n, "value %q matched %d shapes", v, n)
	}
}

func TestBuildDateExpr_TrinoChain(t *testing.T) {
	formats := []FormatCount{
		{Tag: "date-only", Count: 3},
		{Tag: "datetime-offset", Count: 2},
		{Tag: "epoch-seconds", Count: 1},
	}

	got := BuildDateExpr("d.performed_at", formats, DialectTrino)

	// Most specific shape first, regardless of frequency.
	want := "COALESCE(" +
		"TRY(from_unixtime(CAST(d.performed_at AS BIGINT))), " +
		"TRY(from_iso8601_timestamp(d.performed_at)), " +
		"TRY(date_parse(d.performed_at, '%Y-%m-%d')))"
	assert.Equal(t, want, got)
}

func TestBuildDateExpr_TrinoSingleShape(t *testing.T) {
	got := BuildDateExpr("started_at", []FormatCount{{Tag: "date-only", Count: 5}}, DialectTrino)
	assert.Equal(t, "TRY(date_parse(started_at, '%Y-%m-%d'))", got)
}

func TestBuildDateExpr_PostgresCase(t *testing.T) {
	formats := []FormatCount{
		{Tag: "date-only", Count: 3},
		{Tag: "epoch-seconds", Count: 1},
	}

	got := BuildDateExpr("performed_at", formats, DialectPostgres)

	want := "CASE WHEN performed_at ~ '^[0-9]{10}$' THEN to_timestamp((performed_at)::bigint)" +
		" WHEN performed_at ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$' THEN to_timestamp(performed_at, 'YYYY-MM-DD') END"
	assert.Equal(t, want, got)
}

func TestBuildDateExpr_MySQLCase(t *testing.T) {
	got := BuildDateExpr("performed_at", []FormatCount{{Tag: "epoch-seconds", Count: 2}}, DialectMySQL)
	want := "CASE WHEN performed_at REGEXP '^[0-9]{10}$' THEN FROM_UNIXTIME(CAST(performed_at AS UNSIGNED)) END"
	assert.Equal(t, want, got)
}

func TestBuildDateExpr_NoFormats(t *testing.T) {
	assert.Empty(t, BuildDateExpr("c", nil, DialectTrino))
}
