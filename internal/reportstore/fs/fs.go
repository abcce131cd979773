// Package fs provides a local-filesystem implementation of
// reportstore.Store. It is the default provider: zero infrastructure,
// reports land as plain JSON files under a root directory.
package fs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/logger"
	"github.com/medharbor/chartminer/internal/reportstore"
)

// Store writes reports beneath a root directory, creating intermediate
// directories as keys require. It is safe for concurrent use: writes to
// distinct keys never contend, and the orchestrator never writes one key
// twice.
type Store struct {
	dir string
	log *logger.Logger
}

var _ reportstore.Store = (*Store)(nil)

// New validates the root directory and creates it if missing.
func New(cfg *reportstore.Config, log *logger.Logger) (*Store, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "report directory is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, wrapFSError("failed to create report directory", err)
	}
	return &Store{dir: cfg.Dir, log: log}, nil
}

// Save writes the artifact to <dir>/<key> and returns the file path.
func (s *Store) Save(ctx context.Context, key string, v any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(errs.ErrKindTimeout, "save aborted", err)
	}

	data, err := reportstore.Encode(v)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", wrapFSError("failed to create report subdirectory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", wrapFSError("failed to write report", err)
	}

	s.log.With().Str("path", path).Logger().Debug("report persisted")
	return path, nil
}

// Ping verifies the root directory still exists and is a directory.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "ping aborted", err)
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return wrapFSError("report directory unavailable", err)
	}
	if !info.IsDir() {
		return errs.New(errs.ErrKindInvalidInput, "report path is not a directory: "+s.dir)
	}
	return nil
}

// Close is a no-op for the filesystem provider.
func (s *Store) Close() error {
	return nil
}

func wrapFSError(msg string, err error) *errs.Error {
	if os.IsPermission(err) {
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	}
	if os.IsNotExist(err) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}
	return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
}
