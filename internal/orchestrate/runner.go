package orchestrate

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// PatientResult pairs a patient with the outcome of their completeness
// run.
type PatientResult struct {
	PatientID  string
	Assessment *CoverageAssessment
	Err        error
}

// RunPatients runs one completeness loop per patient with at most limit
// loops in flight. build constructs the patient's orchestrator and
// extracted supplies their starting extraction counts (nil means no
// records yet). Per-patient failures land in that patient's result and
// never cancel sibling runs; results align with patientIDs by index.
func RunPatients(ctx context.Context, patientIDs []string, build func(patientID string) *Orchestrator,
	extracted func(patientID string) map[string]int, limit int) []PatientResult {
	if limit <= 0 {
		limit = 4
	}

	results := make([]PatientResult, len(patientIDs))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, id := range patientIDs {
		i, id := i, id // per-iteration copies; required while building with go <1.22
		g.Go(func() error {
			var ext map[string]int
			if extracted != nil {
				ext = extracted(id)
			}
			a, err := build(id).RunCompletenessLoop(ctx, ext)
			results[i] = PatientResult{PatientID: id, Assessment: a, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
