package orchestrate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medharbor/chartminer/internal/catalog"
	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/investigate"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/queryexec"
	"github.com/medharbor/chartminer/internal/reportstore"
	"github.com/medharbor/chartminer/internal/testutil"
)

const coverageSchema = `table_name,column_name,data_type
pathology_reports,patient_id,varchar
pathology_reports,diagnosis,varchar
molecular_results,patient_id,varchar
molecular_results,marker,varchar
medication_orders,patient_id,varchar
medication_orders,drug_name,varchar
imaging_studies,patient_id,varchar
imaging_studies,modality,varchar
encounter_notes,patient_id,varchar
encounter_notes,note_text,varchar
lab_panels,patient_id,varchar
lab_panels,panel_name,varchar
`

// countExecutor answers COUNT(*) statements from a fixed per-table map.
func countExecutor(counts map[string]int64) *testutil.MockExecutor {
	exec := &testutil.MockExecutor{}
	exec.ExecuteFn = func(_ context.Context, sql string) (*queryexec.Result, error) {
		for table, n := range counts {
			if strings.Contains(sql, `"`+table+`"`) {
				return testutil.CountResult(n), nil
			}
		}
		return nil, errs.New(errs.ErrKindQueryFailed, "unexpected statement")
	}
	return exec
}

func coverageOrchestrator(t *testing.T, exec queryexec.Executor, store reportstore.Store, reex Reextractor, opts Options) *Orchestrator {
	t.Helper()
	cat, err := catalog.Load(strings.NewReader(coverageSchema), logger.Nop())
	require.NoError(t, err)
	inv := investigate.New(cat, exec, investigate.DefaultOptions(), logger.Nop())
	return New("Patient/1077", exec, cat, inv, store, reex, logger.Nop(), opts)
}

// reextractorFunc adapts a function to the Reextractor interface and
// records every gap it was handed.
type reextractorFunc struct {
	fn    func(gap Gap) (string, bool, error)
	calls []Gap
}

func (r *reextractorFunc) Reextract(_ context.Context, gap Gap) (string, bool, error) {
	r.calls = append(r.calls, gap)
	if r.fn == nil {
		return "recovered", true, nil
	}
	return r.fn(gap)
}

func TestGapPriority(t *testing.T) {
	cases := []struct {
		table string
		want  int
	}{
		{"pathology_reports", 0},
		{"cancer_diagnoses", 0},
		{"molecular_results", 1},
		{"genomic_variants", 1},
		{"medication_orders", 2},
		{"radiation_therapy_courses", 2},
		{"imaging_studies", 3},
		{"radiology_impressions", 3},
		{"encounter_notes", 4},
		{"clinic_visits", 4},
		{"lab_panels", 5},
		{"ADMISSION_Notes", 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, gapPriority(tc.table), tc.table)
	}
}

func TestAssessCompleteness_CoverageAndGaps(t *testing.T) {
	exec := countExecutor(map[string]int64{
		"pathology_reports": 5,
		"molecular_results": 3,
		"medication_orders": 4,
		"imaging_studies":   2,
		"encounter_notes":   6,
		"lab_panels":        0,
	})
	o := coverageOrchestrator(t, exec, nil, nil, DefaultOptions())

	a, err := o.AssessCompleteness(context.Background(), map[string]int{
		"pathology_reports": 3,
		"molecular_results": 3,
		"medication_orders": 1,
		"encounter_notes":   6,
	})
	require.NoError(t, err)

	assert.Equal(t, "Patient/1077", a.PatientID)
	assert.Len(t, a.PerTable, 5, "zero-row tables are not applicable")
	assert.NotContains(t, a.PerTable, "lab_panels")
	assert.Equal(t, TableCoverage{RawCount: 5, ExtractedCount: 3}, a.PerTable["pathology_reports"])
	assert.Equal(t, TableCoverage{RawCount: 2, ExtractedCount: 0}, a.PerTable["imaging_studies"])

	// 13 of 20 rows covered.
	assert.InDelta(t, 65.0, a.CoveragePct, 1e-9)

	require.Len(t, a.Gaps, 3)
	assert.Equal(t, Gap{Table: "pathology_reports", Missing: 2, Priority: 0}, a.Gaps[0])
	assert.Equal(t, Gap{Table: "medication_orders", Missing: 3, Priority: 2}, a.Gaps[1])
	assert.Equal(t, Gap{Table: "imaging_studies", Missing: 2, Priority: 3}, a.Gaps[2])
	assert.False(t, a.AssessedAt.IsZero())
}

func TestAssessCompleteness_FailedCountExcludesTable(t *testing.T) {
	exec := countExecutor(map[string]int64{
		"molecular_results": 3,
		"encounter_notes":   2,
	})
	o := coverageOrchestrator(t, exec, nil, nil, DefaultOptions())

	a, err := o.AssessCompleteness(context.Background(), map[string]int{
		"molecular_results": 3,
	})
	require.NoError(t, err)

	// Tables whose count failed (everything not in the map) are skipped,
	// not treated as empty.
	assert.Len(t, a.PerTable, 2)
	assert.InDelta(t, 100.0*3/5, a.CoveragePct, 1e-9)
	require.Len(t, a.Gaps, 1)
	assert.Equal(t, "encounter_notes", a.Gaps[0].Table)
}

func TestAssessCompleteness_ExtractedBeyondRawCaps(t *testing.T) {
	exec := countExecutor(map[string]int64{"encounter_notes": 2})
	o := coverageOrchestrator(t, exec, nil, nil, DefaultOptions())

	a, err := o.AssessCompleteness(context.Background(), map[string]int{
		"encounter_notes": 7,
	})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, a.CoveragePct, 1e-9)
	assert.Empty(t, a.Gaps)
	assert.Equal(t, TableCoverage{RawCount: 2, ExtractedCount: 7}, a.PerTable["encounter_notes"])
}

func TestAssessCompleteness_NoApplicableTables(t *testing.T) {
	exec := countExecutor(map[string]int64{})
	exec.ExecuteFn = func(context.Context, string) (*queryexec.Result, error) {
		return testutil.CountResult(0), nil
	}
	o := coverageOrchestrator(t, exec, nil, nil, DefaultOptions())

	a, err := o.AssessCompleteness(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, a.CoveragePct, 1e-9)
	assert.Empty(t, a.PerTable)
	assert.Empty(t, a.Gaps)
}

func baseAssessment() *CoverageAssessment {
	return &CoverageAssessment{
		PatientID: "Patient/1077",
		PerTable: map[string]TableCoverage{
			"pathology_reports": {RawCount: 5, ExtractedCount: 3},
			"medication_orders": {RawCount: 4, ExtractedCount: 1},
			"imaging_studies":   {RawCount: 2, ExtractedCount: 0},
		},
		Gaps: []Gap{
			{Table: "pathology_reports", Missing: 2, Priority: 0},
			{Table: "medication_orders", Missing: 3, Priority: 2},
			{Table: "imaging_studies", Missing: 2, Priority: 3},
		},
	}
}

func TestAttemptGapFilling_HonorsCapAndOrder(t *testing.T) {
	reex := &reextractorFunc{}
	o := coverageOrchestrator(t, &testutil.MockExecutor{}, nil, reex, DefaultOptions())
	a := baseAssessment()

	resolved, err := o.AttemptGapFilling(context.Background(), a, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	require.Len(t, reex.calls, 2)
	assert.Equal(t, "pathology_reports", reex.calls[0].Table)
	assert.Equal(t, "medication_orders", reex.calls[1].Table)

	assert.Equal(t, 4, a.PerTable["pathology_reports"].ExtractedCount)
	assert.Equal(t, 2, a.PerTable["medication_orders"].ExtractedCount)
	assert.Equal(t, 0, a.PerTable["imaging_studies"].ExtractedCount, "beyond the cap")
}

func TestAttemptGapFilling_FailuresAndMissesSkipGap(t *testing.T) {
	reex := &reextractorFunc{fn: func(gap Gap) (string, bool, error) {
		switch gap.Table {
		case "pathology_reports":
			return "", false, errs.New(errs.ErrKindConnectionFailed, "source offline")
		case "medication_orders":
			return "", false, nil
		default:
			return "recovered", true, nil
		}
	}}
	o := coverageOrchestrator(t, &testutil.MockExecutor{}, nil, reex, DefaultOptions())
	a := baseAssessment()

	resolved, err := o.AttemptGapFilling(context.Background(), a, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Len(t, reex.calls, 3, "a failed gap does not stop the rest")

	assert.Equal(t, 3, a.PerTable["pathology_reports"].ExtractedCount)
	assert.Equal(t, 1, a.PerTable["medication_orders"].ExtractedCount)
	assert.Equal(t, 1, a.PerTable["imaging_studies"].ExtractedCount)
}

func TestAttemptGapFilling_NoReextractor(t *testing.T) {
	o := coverageOrchestrator(t, &testutil.MockExecutor{}, nil, nil, DefaultOptions())
	a := baseAssessment()

	resolved, err := o.AttemptGapFilling(context.Background(), a, 10)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, 3, a.PerTable["pathology_reports"].ExtractedCount)
}

func TestRunCompletenessLoop_ReachesFullCoverage(t *testing.T) {
	exec := countExecutor(map[string]int64{
		"pathology_reports": 2,
		"molecular_results": 1,
	})
	store := newMemStore()
	reex := &reextractorFunc{}
	o := coverageOrchestrator(t, exec, store, reex, DefaultOptions())

	final, err := o.RunCompletenessLoop(context.Background(), map[string]int{
		"molecular_results": 1,
	})
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.InDelta(t, 100.0, final.CoveragePct, 1e-9)
	assert.Equal(t, 3, final.Cycle)
	assert.Empty(t, final.Gaps)
	assert.Len(t, reex.calls, 2, "one record recovered per cycle")

	// One snapshot per cycle, coverage as that cycle found it.
	assert.Equal(t, 3, store.len())
	for cycle := 1; cycle <= 3; cycle++ {
		saved, ok := store.get(reportstore.CoverageKey("Patient/1077", cycle))
		require.True(t, ok, "cycle %d snapshot", cycle)
		a, isAssessment := saved.(*CoverageAssessment)
		require.True(t, isAssessment)
		assert.Equal(t, cycle, a.Cycle)
	}
}

func TestRunCompletenessLoop_StopsWhenNoProgress(t *testing.T) {
	exec := countExecutor(map[string]int64{
		"pathology_reports": 2,
		"molecular_results": 1,
	})
	store := newMemStore()
	reex := &reextractorFunc{fn: func(Gap) (string, bool, error) {
		return "", false, nil
	}}
	o := coverageOrchestrator(t, exec, store, reex, DefaultOptions())

	final, err := o.RunCompletenessLoop(context.Background(), map[string]int{
		"molecular_results": 1,
	})
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Equal(t, 1, final.Cycle)
	assert.InDelta(t, 100.0/3, final.CoveragePct, 1e-6)
	assert.Equal(t, 1, store.len(), "only the first cycle ran")
	assert.Len(t, reex.calls, 1)
}

func TestRunCompletenessLoop_CycleCap(t *testing.T) {
	exec := countExecutor(map[string]int64{"pathology_reports": 5})
	store := newMemStore()
	reex := &reextractorFunc{}
	o := coverageOrchestrator(t, exec, store, reex, Options{MaxCycles: 2})

	final, err := o.RunCompletenessLoop(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Equal(t, 2, final.Cycle)
	assert.InDelta(t, 20.0, final.CoveragePct, 1e-9)
	assert.Equal(t, 2, store.len())
	assert.Len(t, reex.calls, 1, "no filling after the final cycle")
}

func TestRunCompletenessLoop_CanceledContext(t *testing.T) {
	exec := countExecutor(map[string]int64{"pathology_reports": 5})
	store := newMemStore()
	o := coverageOrchestrator(t, exec, store, nil, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := o.RunCompletenessLoop(ctx, nil)
	assert.Nil(t, final)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.Zero(t, store.len())
}
