// Package reportstore defines the unified interface for persisting
// investigation artifacts: failure reports and coverage assessments.
//
// All providers (local filesystem, MinIO / S3) implement the Store
// interface. Callers depend only on this package, never on a specific
// provider package.
//
// Usage:
//
//	cfg := reportstore.DefaultConfig()
//	store, err := fs.New(cfg, log)
//	if err != nil { ... }
//	defer store.Close()
//
//	loc, err := store.Save(ctx, reportstore.FailureKey(rep.QueryID), rep)
package reportstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medharbor/chartminer/internal/errs"
)

// Store is the single interface all report storage providers implement.
type Store interface {
	// Save encodes v as JSON and writes it under key. It returns the
	// provider-specific location of the stored artifact (a file path,
	// a bucket/key pair).
	Save(ctx context.Context, key string, v any) (string, error)

	// Ping verifies the storage backend is reachable and writable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error
}

// Encode renders an artifact as indented JSON. Reports are read by
// humans during review, so compactness loses to readability.
func Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode report", err)
	}
	return append(data, '\n'), nil
}

// FailureKey returns the storage key for a query failure report.
func FailureKey(queryID string) string {
	return "failures/failure_" + sanitizeSegment(queryID) + ".json"
}

// CoverageKey returns the storage key for one patient's coverage
// assessment at a given completeness cycle.
func CoverageKey(patientRef string, cycle int) string {
	return fmt.Sprintf("coverage/%s/coverage_cycle_%d.json", sanitizeSegment(patientRef), cycle)
}

// sanitizeSegment makes an identifier safe to use as a single path
// segment: patient refs like "Patient/1077" must not introduce extra
// directory levels.
func sanitizeSegment(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
