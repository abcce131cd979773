// Package app assembles the reasoning core from configuration: logger,
// warehouse executor, schema catalog, domain knowledge base, and report
// store, plus ready-made orchestrators on top of them.
package app

import (
	"context"
	"os"
	"time"

	"github.com/medharbor/chartminer/internal/catalog"
	"github.com/medharbor/chartminer/internal/config"
	"github.com/medharbor/chartminer/internal/investigate"
	"github.com/medharbor/chartminer/internal/knowledge"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/orchestrate"
	"github.com/medharbor/chartminer/internal/queryexec"
	qmysql "github.com/medharbor/chartminer/internal/queryexec/mysql"
	qpostgres "github.com/medharbor/chartminer/internal/queryexec/postgres"
	"github.com/medharbor/chartminer/internal/reportstore"
	storefs "github.com/medharbor/chartminer/internal/reportstore/fs"
	storeminio "github.com/medharbor/chartminer/internal/reportstore/minio"
)

// App bundles the long-lived components of a chartminer deployment.
type App struct {
	Log   *logger.Logger
	Exec  queryexec.Executor
	Cat   *catalog.Catalog
	KB    *knowledge.KB // nil when no reference document is available
	Store reportstore.Store

	cfg *config.Config
}

// New builds every component the configuration names. The executor,
// catalog, and report store are required: a deployment that cannot
// reach the warehouse or read its schema has nothing to do, so failing
// at startup is the right moment. The knowledge base is advisory and
// only logs when its document is unusable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		var err error
		cfg, err = config.Load("")
		if err != nil {
			return nil, err
		}
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	exec, err := newExecutor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.LoadFile(cfg.Catalog.Path, log)
	if err != nil {
		exec.Close()
		return nil, err
	}
	stats := cat.Stats()
	log.With().Int("tables", stats.Tables).Int("columns", stats.Columns).Logger().
		Info("schema catalog loaded")

	kb, err := knowledge.ParseFile(cfg.Knowledge.Path, log)
	if err != nil {
		log.With().Str("path", cfg.Knowledge.Path).Err(err).Logger().
			Warn("knowledge base unavailable, classification validation disabled")
		kb = nil
	} else if missing := kb.Missing(); len(missing) > 0 {
		log.With().Any("missing", missing).Logger().
			Warn("knowledge base degraded")
	}

	store, err := newStore(ctx, cfg, log)
	if err != nil {
		exec.Close()
		return nil, err
	}

	return &App{Log: log, Exec: exec, Cat: cat, KB: kb, Store: store, cfg: cfg}, nil
}

// Close releases the warehouse pool and the report store.
func (a *App) Close() {
	a.Exec.Close()
	if err := a.Store.Close(); err != nil {
		a.Log.With().Err(err).Logger().Warn("report store close failed")
	}
}

// InvestigateOptions maps configuration to investigator tuning. The
// repair dialect follows the warehouse driver so rewrites run where the
// failure happened.
func (a *App) InvestigateOptions() investigate.Options {
	opts := investigate.DefaultOptions()
	opts.SampleLimit = a.cfg.Investigator.SampleLimit
	opts.MinSamples = a.cfg.Investigator.MinSamples
	opts.AutoFixThreshold = a.cfg.Orchestrator.AutoFixThreshold
	if a.cfg.Database.Driver == "mysql" {
		opts.Dialect = investigate.DialectMySQL
	} else {
		opts.Dialect = investigate.DialectPostgres
	}
	return opts
}

// OrchestrateOptions maps configuration to orchestrator tuning.
func (a *App) OrchestrateOptions() orchestrate.Options {
	return orchestrate.Options{
		MaxRetries:      a.cfg.Orchestrator.MaxRetries,
		MaxCycles:       a.cfg.Orchestrator.MaxCycles,
		MaxGapsPerCycle: a.cfg.Orchestrator.MaxGapsPerCycle,
		QueryTimeout:    time.Duration(a.cfg.Database.QueryTimeoutMS) * time.Millisecond,
	}
}

// Orchestrator builds the reasoning loop for one patient. reex may be
// nil when gap filling is not wanted.
func (a *App) Orchestrator(patientID string, reex orchestrate.Reextractor) *orchestrate.Orchestrator {
	inv := investigate.New(a.Cat, a.Exec, a.InvestigateOptions(), a.Log)
	return orchestrate.New(patientID, a.Exec, a.Cat, inv, a.Store, reex, a.Log, a.OrchestrateOptions())
}

// RunPatients runs the completeness loop for each patient with the
// configured concurrency.
func (a *App) RunPatients(ctx context.Context, patientIDs []string,
	extracted func(patientID string) map[string]int, reex orchestrate.Reextractor) []orchestrate.PatientResult {
	build := func(id string) *orchestrate.Orchestrator {
		return a.Orchestrator(id, reex)
	}
	return orchestrate.RunPatients(ctx, patientIDs, build, extracted, a.cfg.Orchestrator.PatientConcurrency)
}

func newExecutor(ctx context.Context, cfg *config.Config) (queryexec.Executor, error) {
	qcfg := queryexec.DefaultConfig(cfg.Database.DSN)
	if cfg.Database.QueryTimeoutMS > 0 {
		qcfg.QueryTimeout = time.Duration(cfg.Database.QueryTimeoutMS) * time.Millisecond
	}
	if cfg.Database.Driver == "mysql" {
		qcfg.Driver = queryexec.DriverMySQL
		return qmysql.New(ctx, qcfg)
	}
	qcfg.Driver = queryexec.DriverPostgres
	return qpostgres.New(ctx, qcfg)
}

func newStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (reportstore.Store, error) {
	rcfg := &reportstore.Config{
		Provider:  reportstore.Provider(cfg.Reports.Provider),
		Dir:       cfg.Reports.Dir,
		Endpoint:  cfg.Reports.Endpoint,
		AccessKey: cfg.Reports.AccessKey,
		SecretKey: cfg.Reports.SecretKey,
		UseSSL:    cfg.Reports.UseSSL,
		Region:    cfg.Reports.Region,
		Bucket:    cfg.Reports.Bucket,
		Prefix:    cfg.Reports.Prefix,
	}
	if rcfg.Provider == reportstore.ProviderMinIO {
		return storeminio.New(ctx, rcfg)
	}
	return storefs.New(rcfg, log)
}
