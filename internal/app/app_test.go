package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medharbor/chartminer/internal/catalog"
	"github.com/medharbor/chartminer/internal/config"
	"github.com/medharbor/chartminer/internal/investigate"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/queryexec"
	"github.com/medharbor/chartminer/internal/testutil"
)

func TestInvestigateOptions_FollowDriverAndConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Investigator.SampleLimit = 7
	cfg.Investigator.MinSamples = 2
	cfg.Orchestrator.AutoFixThreshold = 0.8
	a := &App{cfg: cfg}

	opts := a.InvestigateOptions()
	assert.Equal(t, 7, opts.SampleLimit)
	assert.Equal(t, 2, opts.MinSamples)
	assert.InDelta(t, 0.8, opts.AutoFixThreshold, 1e-9)
	assert.Equal(t, investigate.DialectPostgres, opts.Dialect)

	cfg.Database.Driver = "mysql"
	assert.Equal(t, investigate.DialectMySQL, a.InvestigateOptions().Dialect)
}

func TestOrchestrateOptions_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.MaxRetries = 1
	cfg.Orchestrator.MaxCycles = 3
	cfg.Orchestrator.MaxGapsPerCycle = 4
	cfg.Database.QueryTimeoutMS = 1500
	a := &App{cfg: cfg}

	opts := a.OrchestrateOptions()
	assert.Equal(t, 1, opts.MaxRetries)
	assert.Equal(t, 3, opts.MaxCycles)
	assert.Equal(t, 4, opts.MaxGapsPerCycle)
	assert.Equal(t, 1500*time.Millisecond, opts.QueryTimeout)
}

func TestNewStore_FSProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Reports.Dir = t.TempDir()

	store, err := newStore(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	loc, err := store.Save(context.Background(), "failures/failure_x.json", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Contains(t, loc, cfg.Reports.Dir)
}

func TestOrchestrator_AssembledLoopRuns(t *testing.T) {
	const schema = `table_name,column_name,data_type
pathology_reports,patient_id,varchar
pathology_reports,diagnosis,varchar
`
	cat, err := catalog.Load(strings.NewReader(schema), logger.Nop())
	require.NoError(t, err)

	exec := &testutil.MockExecutor{ExecuteFn: func(context.Context, string) (*queryexec.Result, error) {
		return testutil.CountResult(2), nil
	}}

	cfg := config.Default()
	cfg.Database.QueryTimeoutMS = 0
	a := &App{Log: logger.Nop(), Exec: exec, Cat: cat, Store: nil, cfg: cfg}

	orch := a.Orchestrator("Patient/9", nil)
	final, err := orch.RunCompletenessLoop(context.Background(), map[string]int{
		"pathology_reports": 2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, final.CoveragePct, 1e-9)
	assert.Equal(t, 1, final.Cycle)
}
