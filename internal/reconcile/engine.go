// Package reconcile compares a source file tree against a target tree and
// copies the differences under an explicit overwrite policy.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/wfsync/internal/fingerprint"
)

// Engine classifies and applies file trees on a filesystem.
type Engine struct {
	fs       afero.Fs
	logger   *slog.Logger
	workers  int
	observer Observer
	keep     func(rel string) bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWorkers bounds how many files are fingerprinted concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithObserver registers an observer for completed copies.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithPathFilter restricts Classify to source paths for which keep returns
// true. Directories rejected by keep are not descended into, so keep must
// accept every ancestor directory of a wanted file.
func WithPathFilter(keep func(rel string) bool) Option {
	return func(e *Engine) {
		e.keep = keep
	}
}

// NewEngine creates an engine operating on fs.
func NewEngine(fs afero.Fs, opts ...Option) *Engine {
	e := &Engine{
		fs:      fs,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify walks sourceDir and classifies every regular file against the
// same relative path under targetDir. targetDir does not need to exist.
// Any failure aborts the whole classification.
func (e *Engine) Classify(ctx context.Context, sourceDir, targetDir string) (*Report, error) {
	sourceDir = filepath.Clean(sourceDir)
	targetDir = filepath.Clean(targetDir)

	files, err := e.enumerate(sourceDir)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("enumerated source files", "source", sourceDir, "count", len(files))

	records := make([]FileRecord, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := e.classifyFile(sourceDir, targetDir, rel)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		SourceDir: sourceDir,
		TargetDir: targetDir,
		Records:   records,
	}, nil
}

// enumerate returns the slash separated relative paths of all regular files
// below root in lexical walk order. Symlinks are followed when they resolve
// to a regular file.
func (e *Engine) enumerate(root string) ([]string, error) {
	info, err := e.fs.Stat(root)
	if err != nil {
		return nil, &EnumerationError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &EnumerationError{Path: root, Err: fmt.Errorf("not a directory")}
	}

	var files []string
	err = afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return &EnumerationError{Path: path, Err: err}
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return &EnumerationError{Path: path, Err: err}
		}
		rel = filepath.ToSlash(rel)

		if e.keep != nil && !e.keep(rel) {
			e.logger.Debug("skipping filtered path", "path", rel)
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := e.fs.Stat(path)
			if os.IsNotExist(err) {
				e.logger.Debug("skipping dangling symlink", "path", rel)
				return nil
			}
			if err != nil {
				return &EnumerationError{Path: path, Err: err}
			}
			info = resolved
		}
		if !info.Mode().IsRegular() {
			e.logger.Debug("skipping non-regular file", "path", rel, "mode", info.Mode().String())
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (e *Engine) classifyFile(sourceDir, targetDir, rel string) (FileRecord, error) {
	srcPath := filepath.Join(sourceDir, filepath.FromSlash(rel))
	dstPath := filepath.Join(targetDir, filepath.FromSlash(rel))

	srcSum, err := fingerprint.File(e.fs, srcPath)
	if err != nil {
		return FileRecord{}, &ReadError{Path: srcPath, Err: err}
	}

	rec := FileRecord{Path: rel, SourceFingerprint: srcSum}

	if _, err := e.fs.Stat(dstPath); err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			rec.Status = StatusNew
			e.logger.Debug("classified file", "path", rel, "status", rec.Status.String())
			return rec, nil
		}
		return FileRecord{}, &ReadError{Path: dstPath, Err: err}
	}

	dstSum, err := fingerprint.File(e.fs, dstPath)
	if err != nil {
		return FileRecord{}, &ReadError{Path: dstPath, Err: err}
	}

	rec.TargetFingerprint = dstSum
	if srcSum == dstSum {
		rec.Status = StatusIdentical
	} else {
		rec.Status = StatusModified
	}
	e.logger.Debug("classified file", "path", rel, "status", rec.Status.String())
	return rec, nil
}

// Apply copies the records of report from sourceDir to targetDir according
// to policy. Copies run one at a time; the first failure stops the run and
// files already copied stay in place.
func (e *Engine) Apply(ctx context.Context, sourceDir, targetDir string, report *Report, policy Policy) (*Outcome, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}
	sourceDir = filepath.Clean(sourceDir)
	targetDir = filepath.Clean(targetDir)
	if report.SourceDir != sourceDir || report.TargetDir != targetDir {
		return nil, fmt.Errorf("%w: report has %s -> %s, got %s -> %s",
			ErrReportMismatch, report.SourceDir, report.TargetDir, sourceDir, targetDir)
	}

	out := &Outcome{
		Added:      make([]string, 0),
		Skipped:    make([]string, 0),
		Updated:    make([]string, 0),
		Conflicted: make([]string, 0),
		DryRun:     policy.DryRun,
	}

	var news, identical, modified, updated []FileRecord
	for _, rec := range report.Records {
		switch rec.Status {
		case StatusNew:
			news = append(news, rec)
		case StatusIdentical:
			identical = append(identical, rec)
		case StatusModified:
			modified = append(modified, rec)
		case StatusUpdated:
			updated = append(updated, rec)
		default:
			return nil, fmt.Errorf("record %s has unknown status %d", rec.Path, int(rec.Status))
		}
	}

	toCopy := news
	if policy.Force {
		toCopy = append(toCopy, modified...)
	}
	toCopy = append(toCopy, updated...)

	for _, rec := range toCopy {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !policy.DryRun {
			src := filepath.Join(sourceDir, filepath.FromSlash(rec.Path))
			dst := filepath.Join(targetDir, filepath.FromSlash(rec.Path))
			e.logger.Debug("copying file", "path", rec.Path, "status", rec.Status.String())
			if err := e.copyFile(src, dst); err != nil {
				return nil, &CopyError{Path: dst, Err: err}
			}
			if e.observer != nil {
				e.observer.Copied(rec)
			}
		}

		if rec.Status == StatusNew {
			out.Added = append(out.Added, rec.Path)
		} else {
			out.Updated = append(out.Updated, rec.Path)
		}
	}

	for _, rec := range identical {
		out.Skipped = append(out.Skipped, rec.Path)
	}
	if !policy.Force {
		for _, rec := range modified {
			out.Skipped = append(out.Skipped, rec.Path)
			out.Conflicted = append(out.Conflicted, rec.Path)
		}
	}

	return out, nil
}
