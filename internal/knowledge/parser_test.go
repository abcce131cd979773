package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
)

func TestParse_SectionOrderIrrelevant(t *testing.T) {
	doc := `## Nomenclature Changes

| Obsolete term | Current term |
| --- | --- |
| Old name | New name |

## Grading Overrides

| Trigger markers | Resulting grade | Rationale |
| --- | --- | --- |
| Marker Q | grade 4 | because |

## Diagnosis Applicability

| Diagnosis | Age range | Typical sites | Required molecular tests |
| --- | --- | --- | --- |
| New name | 10-20 | site | test A |
`
	kb, err := Parse(strings.NewReader(doc), logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, Stats{Diagnoses: 1, Overrides: 1, Nomenclature: 1}, kb.Stats())

	// The alias attaches even though nomenclature was parsed before the rule.
	canonical, rule, viaAlias := kb.Lookup("Old name")
	assert.Equal(t, "New name", canonical)
	assert.NotNil(t, rule)
	assert.True(t, viaAlias)
	assert.Equal(t, []string{"Old name"}, rule.Aliases)
}

func TestParse_MissingSectionsDegrade(t *testing.T) {
	doc := `## Diagnosis Applicability

| Diagnosis | Age range |
| --- | --- |
| Thing | 1-2 |
`
	kb, err := Parse(strings.NewReader(doc), logger.Nop())
	require.NoError(t, err)

	missing := kb.Missing()
	assert.ElementsMatch(t, []string{CategoryOverrides, CategoryNomenclature}, missing)

	// Operations over missing categories return empty, not panic.
	assert.Nil(t, kb.CheckOverride("Thing", []string{"anything"}))
}

func TestParse_NothingUsable(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"prose only", "# Title\n\nJust words, no tables.\n"},
		{"unrecognized headings", "## Weather\n\n| a | b |\n| --- | --- |\n| x | y |\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc), logger.Nop())
			require.Error(t, err)
			assert.True(t, errs.IsKnowledgeParse(err))
		})
	}
}

func TestParse_MalformedRowsSkipped(t *testing.T) {
	doc := `## Diagnosis Applicability

| Diagnosis | Age range |
| --- | --- |
| Good | 1-10 |
| Bad age | not-an-age |
| | 5-6 |
| Also good | 20+ |
`
	kb, err := Parse(strings.NewReader(doc), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, kb.Stats().Diagnoses)

	_, rule, _ := kb.Lookup("Also good")
	require.NotNil(t, rule)
	assert.Equal(t, 20, rule.MinAge)
	assert.Equal(t, UnknownAge, rule.MaxAge)
}

func TestParseAgeRange(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
		wantErr  bool
	}{
		{"40-90", 40, 90, false},
		{" 3 - 17 ", 3, 17, false},
		{"65+", 65, -1, false},
		{"any", -1, -1, false},
		{"", -1, -1, false},
		{"7", 7, 7, false},
		{"forty", 0, 0, true},
		{"a-b", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			min, max, err := parseAgeRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.min, min)
			assert.Equal(t, tt.max, max)
		})
	}
}

func TestSplitTableRow(t *testing.T) {
	cells, ok := splitTableRow("| a | b c | d |")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b c", "d"}, cells)

	_, ok = splitTableRow("prose line")
	assert.False(t, ok)
}

func TestIsSeparatorRow(t *testing.T) {
	assert.True(t, isSeparatorRow([]string{"---", "---"}))
	assert.True(t, isSeparatorRow([]string{":--", "--:", ":-:"}))
	assert.False(t, isSeparatorRow([]string{"---", "data"}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList("a; b ;c"))
	assert.Nil(t, splitList("  "))
	assert.Equal(t, []string{"only"}, splitList("only"))
}
