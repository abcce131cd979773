// Package orchestrate drives the extraction reasoning loop for one
// patient: execute queries with investigate-and-retry semantics, assess
// how complete the extracted record is against the warehouse, and fill
// gaps until coverage stops improving.
package orchestrate

import (
	"context"
	"time"

	"github.com/medharbor/chartminer/internal/catalog"
	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/investigate"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/queryexec"
	"github.com/medharbor/chartminer/internal/reportstore"
)

// Options tunes a patient run. These are construction parameters, not
// constants: batch deployments size them per warehouse.
type Options struct {
	MaxRetries      int           // rewritten-query retries per statement
	MaxCycles       int           // completeness loop cap
	MaxGapsPerCycle int           // reextraction attempts per cycle
	QueryTimeout    time.Duration // per-statement deadline, 0 disables
}

// DefaultOptions returns the tuning used in production runs.
func DefaultOptions() Options {
	return Options{
		MaxRetries:      2,
		MaxCycles:       5,
		MaxGapsPerCycle: 10,
		QueryTimeout:    30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.MaxCycles <= 0 {
		o.MaxCycles = def.MaxCycles
	}
	if o.MaxGapsPerCycle <= 0 {
		o.MaxGapsPerCycle = def.MaxGapsPerCycle
	}
	return o
}

// Orchestrator runs the reasoning loop for a single patient. Build one
// per patient run; it is not reused across patients.
type Orchestrator struct {
	patientID string
	exec      queryexec.Executor
	cat       *catalog.Catalog
	inv       *investigate.Investigator
	store     reportstore.Store
	reex      Reextractor
	log       *logger.Logger
	opts      Options
}

// New builds a single-patient orchestrator. store and reex may be nil:
// without a store artifacts are not persisted, without a reextractor
// gap filling resolves nothing.
func New(patientID string, exec queryexec.Executor, cat *catalog.Catalog, inv *investigate.Investigator,
	store reportstore.Store, reex Reextractor, log *logger.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		patientID: patientID,
		exec:      exec,
		cat:       cat,
		inv:       inv,
		store:     store,
		reex:      reex,
		log:       log.With().Str("patient", patientID).Logger(),
		opts:      opts.withDefaults(),
	}
}

// ExecuteWithInvestigation runs a statement, and on failure investigates
// and retries with the investigator's rewrite while the repair stays
// auto-fixable and the retry budget lasts. An explicit depth counter
// bounds the loop. Timeouts surface immediately: there is nothing in a
// timeout's text worth investigating, and sampling a struggling
// warehouse makes things worse.
//
// On success the last report (if any) documents the repair that worked.
// On give-up the final report is persisted exactly once and returned
// alongside the executor's error.
func (o *Orchestrator) ExecuteWithInvestigation(ctx context.Context, queryText, description string) (*queryexec.Result, *investigate.FailureReport, error) {
	current := queryText
	var rep *investigate.FailureReport

	for depth := 0; ; depth++ {
		res, err := o.execute(ctx, current)
		if err == nil {
			if depth > 0 {
				o.log.With().Str("query", description).Int("depth", depth).Logger().
					Info("query succeeded after rewrite")
			}
			return res, rep, nil
		}

		if errs.IsTimeout(err) {
			o.log.With().Str("query", description).Err(err).Logger().
				Warn("query timed out")
			return nil, rep, err
		}

		rep = o.inv.Investigate(ctx, "", current, queryexec.ErrorText(err))
		log := o.log.With().
			Str("query", description).
			Str("query_id", rep.QueryID).
			Str("kind", rep.Kind.String()).
			Float64("confidence", rep.Confidence).
			Logger()

		if !rep.AutoFixable || depth >= o.opts.MaxRetries || rep.RewrittenQuery == current {
			o.persistFailure(ctx, rep)
			log.Warn("giving up on query")
			return nil, rep, err
		}

		log.Info("retrying with rewritten query")
		current = rep.RewrittenQuery
	}
}

// execute applies the per-statement deadline.
func (o *Orchestrator) execute(ctx context.Context, sql string) (*queryexec.Result, error) {
	if o.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.QueryTimeout)
		defer cancel()
	}
	return o.exec.Execute(ctx, sql)
}

// persistFailure stores the report. Persistence failure is logged,
// never fatal: losing an artifact must not break the run.
func (o *Orchestrator) persistFailure(ctx context.Context, rep *investigate.FailureReport) {
	if o.store == nil {
		return
	}
	loc, err := o.store.Save(ctx, reportstore.FailureKey(rep.QueryID), rep)
	if err != nil {
		o.log.With().Str("query_id", rep.QueryID).Err(err).Logger().
			Error("failed to persist failure report")
		return
	}
	o.log.With().Str("query_id", rep.QueryID).Str("location", loc).Logger().
		Debug("failure report persisted")
}

func (o *Orchestrator) persistCoverage(ctx context.Context, a *CoverageAssessment) {
	if o.store == nil {
		return
	}
	loc, err := o.store.Save(ctx, reportstore.CoverageKey(a.PatientID, a.Cycle), a)
	if err != nil {
		o.log.With().Int("cycle", a.Cycle).Err(err).Logger().
			Error("failed to persist coverage assessment")
		return
	}
	o.log.With().Int("cycle", a.Cycle).Str("location", loc).Logger().
		Debug("coverage assessment persisted")
}
