// Package investigate turns failed extraction queries into structured,
// actionable failure reports. Given the query text and the engine's error
// message, it classifies what went wrong, works out which fields were
// implicated, samples their live values, and proposes a repair, with a
// confidence score that tells the orchestrator whether the repair is safe
// to retry automatically.
//
// Everything here is deterministic: same query, same error, same samples
// in, same report out.
package investigate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medharbor/chartminer/internal/catalog"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/queryexec"
)

// FailureKind is the diagnostic category of a query failure.
type FailureKind int

const (
	KindUnclassified FailureKind = iota
	KindDateFormat
	KindUnknownColumn
	KindTypeMismatch
	KindSyntax
	KindTimeout
)

func (k FailureKind) String() string {
	switch k {
	case KindDateFormat:
		return "date_format"
	case KindUnknownColumn:
		return "unknown_column"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindSyntax:
		return "syntax"
	case KindTimeout:
		return "timeout"
	default:
		return "unclassified"
	}
}

// FieldRef names one column as it appeared in the failing query, plus the
// table its alias resolved to.
type FieldRef struct {
	Alias  string // qualifier as written, may equal the table name
	Table  string // resolved table name
	Column string
}

// Token returns the field as it appears in query text.
func (f FieldRef) Token() string {
	if f.Alias == "" {
		return f.Column
	}
	return f.Alias + "." + f.Column
}

// Key returns the canonical "table.column" identity used for sample maps.
func (f FieldRef) Key() string {
	return f.Table + "." + f.Column
}

// FormatCount is one detected value shape and how often it appeared.
type FormatCount struct {
	Tag     string // e.g. "date-only", "epoch-seconds"
	Count   int
	Example string
}

// FormatAnalysis is the outcome of shape detection over sampled values.
type FormatAnalysis struct {
	Field    FieldRef
	Formats  []FormatCount // descending by count
	Mixed    bool          // more than one shape present
	Unparsed []string      // samples matching no known shape
}

// FailureReport is the investigator's full verdict on one failed query.
type FailureReport struct {
	QueryID   string
	QueryText string
	ErrorText string
	Kind      FailureKind

	Fields  []FieldRef          // implicated fields, most likely first
	Samples map[string][]string // field Key() → sampled values
	Format  *FormatAnalysis     // set for date-format failures

	ProposedFix    string // repair fragment, "" when none could be made
	RewrittenQuery string // full retryable statement, "" when none
	Confidence     float64
	AutoFixable    bool
	Explanation    string

	InvestigatedAt time.Time
}

// Options tunes investigation behavior.
type Options struct {
	SampleLimit      int     // rows fetched per implicated field
	MinSamples       int     // fewer sampled values than this is "thin"
	MaxFieldsSampled int     // fields sampled per investigation
	AutoFixThreshold float64 // confidence needed for AutoFixable
	Dialect          Dialect // SQL dialect of repair fragments
}

// DefaultOptions returns the tuning used in production runs.
func DefaultOptions() Options {
	return Options{
		SampleLimit:      20,
		MinSamples:       3,
		MaxFieldsSampled: 3,
		AutoFixThreshold: 0.9,
		Dialect:          DialectTrino,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SampleLimit < 1 {
		o.SampleLimit = def.SampleLimit
	}
	if o.MinSamples < 1 {
		o.MinSamples = def.MinSamples
	}
	if o.MaxFieldsSampled < 1 {
		o.MaxFieldsSampled = def.MaxFieldsSampled
	}
	if o.AutoFixThreshold == 0 {
		o.AutoFixThreshold = def.AutoFixThreshold
	}
	if o.Dialect == "" {
		o.Dialect = def.Dialect
	}
	return o
}

// Investigator diagnoses failed queries against a schema catalog, using
// an executor to sample live values.
type Investigator struct {
	cat  *catalog.Catalog
	exec queryexec.Executor
	opts Options
	log  *logger.Logger
}

// New returns an Investigator. The executor is used only for sampling;
// a sampling failure degrades the report instead of failing it.
func New(cat *catalog.Catalog, exec queryexec.Executor, opts Options, log *logger.Logger) *Investigator {
	if log == nil {
		log = logger.Nop()
	}
	return &Investigator{cat: cat, exec: exec, opts: opts.withDefaults(), log: log}
}

// Investigate classifies the failure, resolves the implicated fields,
// samples their values, and synthesizes a repair. It always returns a
// report: an investigation can degrade (no fields resolved, sampling
// failed) but never errors out.
func (inv *Investigator) Investigate(ctx context.Context, queryID, queryText, errorText string) *FailureReport {
	if queryID == "" {
		queryID = uuid.NewString()
	}

	rep := &FailureReport{
		QueryID:        queryID,
		QueryText:      queryText,
		ErrorText:      errorText,
		Kind:           Classify(errorText),
		Samples:        map[string][]string{},
		InvestigatedAt: time.Now().UTC(),
	}

	log := inv.log.With().
		Str("query_id", queryID).
		Str("kind", rep.Kind.String()).
		Logger()
	log.Debug("investigating failed query")

	// Timeouts and unrecognized errors carry nothing to repair; sampling
	// against an already-struggling warehouse would make things worse.
	switch rep.Kind {
	case KindTimeout:
		rep.Explanation = "query exceeded its time budget; no repair attempted"
		return rep
	case KindUnclassified:
		rep.Explanation = "error text matches no known failure signature"
		return rep
	}

	fields, resolvable := ResolveFields(queryText, errorText, inv.cat)
	rep.Fields = fields

	switch rep.Kind {
	case KindDateFormat, KindTypeMismatch:
		inv.sampleFields(ctx, rep)
	}

	switch rep.Kind {
	case KindDateFormat:
		inv.fixDateFormat(rep)
	case KindTypeMismatch:
		inv.fixTypeMismatch(rep)
	case KindUnknownColumn:
		inv.fixUnknownColumn(rep)
	case KindSyntax:
		rep.Explanation = "statement does not parse; manual correction required"
	}

	rep.Confidence = inv.score(rep, resolvable)
	rep.AutoFixable = rep.Confidence > inv.opts.AutoFixThreshold && rep.RewrittenQuery != ""

	log.With().
		Float64("confidence", rep.Confidence).
		Int("fields", len(rep.Fields)).
		Logger().
		Info("investigation complete")

	return rep
}

// sampleFields pulls live values for the implicated fields so shape
// analysis works from data, not guesses. Sampling failures are logged
// and skipped: a degraded report beats no report.
func (inv *Investigator) sampleFields(ctx context.Context, rep *FailureReport) {
	limit := inv.opts.MaxFieldsSampled
	for i, f := range rep.Fields {
		if i >= limit {
			break
		}
		q, err := inv.cat.SampleQuery(f.Table, f.Column, inv.opts.SampleLimit)
		if err != nil {
			// Column missing from the catalog, nothing to sample.
			continue
		}
		res, err := inv.exec.Execute(ctx, q)
		if err != nil {
			inv.log.With().Str("field", f.Key()).Err(err).Logger().
				Warn("sampling failed, continuing without values")
			continue
		}
		vals := res.ColumnStrings(f.Column)
		if len(vals) > inv.opts.SampleLimit {
			vals = vals[:inv.opts.SampleLimit]
		}
		rep.Samples[f.Key()] = vals
	}
}

// totalSamples counts every sampled value across fields.
func (rep *FailureReport) totalSamples() int {
	n := 0
	for _, vals := range rep.Samples {
		n += len(vals)
	}
	return n
}

// score turns the investigation outcome into a confidence in [0, 1].
//
// Bases by kind: date format 0.95, type mismatch 0.7, unknown column 0.5
// (a name suggestion is never better than a coin flip on intent), syntax
// 0.2. Thin samples and ambiguous field resolution each cost 0.15.
func (inv *Investigator) score(rep *FailureReport, resolvable bool) float64 {
	var s float64
	switch rep.Kind {
	case KindDateFormat:
		s = 0.95
	case KindTypeMismatch:
		s = 0.7
	case KindUnknownColumn:
		s = 0.5
	case KindSyntax:
		s = 0.2
	default:
		return 0
	}

	switch rep.Kind {
	case KindDateFormat, KindTypeMismatch:
		if rep.totalSamples() < inv.opts.MinSamples {
			s -= 0.15
		}
	}
	if len(rep.Fields) > 1 || !resolvable {
		s -= 0.15
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
