package orchestrate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/medharbor/chartminer/internal/errs"
)

// TableCoverage compares warehouse row counts against extracted record
// counts for one table.
type TableCoverage struct {
	RawCount       int `json:"raw_count"`
	ExtractedCount int `json:"extracted_count"`
}

// Gap is one table where extraction trails the warehouse. Field and
// EventRef stay empty for count-shortfall gaps; reextractors that
// recover individual records fill them in when reporting back.
type Gap struct {
	Table    string `json:"table"`
	Field    string `json:"field,omitempty"`
	EventRef string `json:"event_ref,omitempty"`
	Missing  int    `json:"missing"`
	Priority int    `json:"priority"`
}

// CoverageAssessment is one cycle's snapshot of extraction
// completeness for a patient.
type CoverageAssessment struct {
	PatientID   string                   `json:"patient_id"`
	PerTable    map[string]TableCoverage `json:"per_table"`
	CoveragePct float64                  `json:"coverage_pct"`
	Gaps        []Gap                    `json:"gaps,omitempty"`
	Cycle       int                      `json:"cycle"`
	AssessedAt  time.Time                `json:"assessed_at"`
}

// Reextractor attempts to recover a single missing record for a gap.
// found reports whether a value was recovered; err is reserved for the
// attempt itself going wrong.
type Reextractor interface {
	Reextract(ctx context.Context, gap Gap) (value string, found bool, err error)
}

// Clinically urgent record types are filled first. Matching is by
// substring so warehouse-specific table names still rank.
var gapKeywords = []struct {
	priority int
	words    []string
}{
	{0, []string{"patholog", "diagnos"}},
	{1, []string{"molecular", "genom", "variant"}},
	{2, []string{"medic", "treatment", "therap"}},
	{3, []string{"imaging", "radiol"}},
	{4, []string{"encounter", "visit", "note"}},
}

func gapPriority(table string) int {
	t := strings.ToLower(table)
	for _, kw := range gapKeywords {
		for _, w := range kw.words {
			if strings.Contains(t, w) {
				return kw.priority
			}
		}
	}
	return 5
}

// AssessCompleteness counts the patient's rows in every patient-scoped
// catalog table and compares them with the extracted record counts.
// Tables with no rows for the patient are not applicable and excluded;
// tables whose count query fails even after investigation are excluded
// too, with a warning. extracted maps table name to records already
// pulled out for this patient.
func (o *Orchestrator) AssessCompleteness(ctx context.Context, extracted map[string]int) (*CoverageAssessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "completeness assessment canceled", err)
	}

	a := &CoverageAssessment{
		PatientID:  o.patientID,
		PerTable:   make(map[string]TableCoverage),
		AssessedAt: time.Now().UTC(),
	}

	var sumRaw, sumCovered int
	for _, table := range o.cat.PatientScopedTables() {
		q, err := o.cat.CountQuery(table, o.patientID)
		if err != nil {
			o.log.With().Str("table", table).Err(err).Logger().
				Debug("no count query for table")
			continue
		}

		res, _, err := o.ExecuteWithInvestigation(ctx, q, "count "+table)
		if err != nil {
			o.log.With().Str("table", table).Err(err).Logger().
				Warn("count failed, table excluded from assessment")
			continue
		}
		raw64, err := res.FirstInt()
		if err != nil {
			o.log.With().Str("table", table).Err(err).Logger().
				Warn("unreadable count, table excluded from assessment")
			continue
		}
		raw := int(raw64)
		if raw == 0 {
			continue
		}

		ext := extracted[table]
		a.PerTable[table] = TableCoverage{RawCount: raw, ExtractedCount: ext}

		covered := ext
		if covered > raw {
			covered = raw
		}
		sumRaw += raw
		sumCovered += covered

		if missing := raw - ext; missing > 0 {
			a.Gaps = append(a.Gaps, Gap{
				Table:    table,
				Missing:  missing,
				Priority: gapPriority(table),
			})
		}
	}

	if sumRaw == 0 {
		a.CoveragePct = 100
	} else {
		a.CoveragePct = float64(sumCovered) / float64(sumRaw) * 100
	}

	sort.Slice(a.Gaps, func(i, j int) bool {
		if a.Gaps[i].Priority != a.Gaps[j].Priority {
			return a.Gaps[i].Priority < a.Gaps[j].Priority
		}
		return a.Gaps[i].Table < a.Gaps[j].Table
	})
	return a, nil
}

// AttemptGapFilling hands the highest-priority gaps to the reextractor,
// at most maxGaps of them and one record per gap per cycle. A recovered
// value bumps the table's extracted count in a; failures are logged and
// the gap skipped. Returns how many records were recovered.
func (o *Orchestrator) AttemptGapFilling(ctx context.Context, a *CoverageAssessment, maxGaps int) (int, error) {
	if o.reex == nil || maxGaps <= 0 {
		return 0, nil
	}

	resolved := 0
	for i, gap := range a.Gaps {
		if i >= maxGaps {
			break
		}
		if err := ctx.Err(); err != nil {
			return resolved, errs.Wrap(errs.ErrKindTimeout, "gap filling canceled", err)
		}

		value, found, err := o.reex.Reextract(ctx, gap)
		if err != nil {
			o.log.With().Str("table", gap.Table).Err(err).Logger().
				Warn("reextraction failed, gap skipped")
			continue
		}
		if !found || value == "" {
			o.log.With().Str("table", gap.Table).Logger().
				Debug("reextraction found nothing")
			continue
		}

		tc := a.PerTable[gap.Table]
		tc.ExtractedCount++
		a.PerTable[gap.Table] = tc
		resolved++
	}
	return resolved, nil
}

// RunCompletenessLoop alternates assessment and gap filling until the
// record is complete, a cycle makes no progress, or the cycle cap is
// hit. Every assessment is persisted before gap filling mutates it, so
// the stored sequence shows coverage as each cycle found it. The
// returned assessment is always the most recent one.
func (o *Orchestrator) RunCompletenessLoop(ctx context.Context, extracted map[string]int) (*CoverageAssessment, error) {
	work := make(map[string]int, len(extracted))
	for k, v := range extracted {
		work[k] = v
	}

	var last *CoverageAssessment
	for cycle := 1; cycle <= o.opts.MaxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return last, errs.Wrap(errs.ErrKindTimeout, "completeness loop canceled", err)
		}

		a, err := o.AssessCompleteness(ctx, work)
		if err != nil {
			return last, err
		}
		a.Cycle = cycle
		o.persistCoverage(ctx, a)
		last = a

		o.log.With().
			Int("cycle", cycle).
			Float64("coverage_pct", a.CoveragePct).
			Int("gaps", len(a.Gaps)).
			Logger().Info("coverage assessed")

		if a.CoveragePct >= 100 {
			o.log.With().Int("cycle", cycle).Logger().Info("extraction complete")
			return a, nil
		}
		if cycle == o.opts.MaxCycles {
			break
		}

		resolved, err := o.AttemptGapFilling(ctx, a, o.opts.MaxGapsPerCycle)
		if err != nil {
			return a, err
		}
		if resolved == 0 {
			o.log.With().Int("cycle", cycle).Logger().
				Info("no gaps resolved, stopping")
			return a, nil
		}

		for t, tc := range a.PerTable {
			work[t] = tc.ExtractedCount
		}
	}

	o.log.With().Int("cycles", o.opts.MaxCycles).Logger().
		Warn("cycle cap reached with gaps remaining")
	return last, nil
}
