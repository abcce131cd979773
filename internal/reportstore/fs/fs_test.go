package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/reportstore"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(&reportstore.Config{Provider: reportstore.ProviderFS, Dir: dir}, logger.Nop())
	require.NoError(t, err)
	return s, dir
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New(&reportstore.Config{}, nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = New(nil, nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestNew_CreatesMissingRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	s, err := New(&reportstore.Config{Dir: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
}

func TestSave_WritesNestedKey(t *testing.T) {
	s, dir := newStore(t)

	type report struct {
		QueryID string `json:"query_id"`
	}
	loc, err := s.Save(context.Background(), reportstore.FailureKey("q-42"), report{QueryID: "q-42"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "failures", "failure_q-42.json"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query_id": "q-42"}`, string(data))
}

func TestSave_CoverageKeyPerCycle(t *testing.T) {
	s, dir := newStore(t)

	for cycle := 1; cycle <= 2; cycle++ {
		_, err := s.Save(context.Background(),
			reportstore.CoverageKey("Patient/1077", cycle),
			map[string]int{"cycle": cycle})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "coverage", "Patient_1077"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSave_CanceledContext(t *testing.T) {
	s, _ := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, "failures/x.json", map[string]string{})
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

func TestPing_RootRemoved(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, os.RemoveAll(dir))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}
