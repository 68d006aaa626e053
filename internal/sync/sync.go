// Package sync runs an install or update: it fetches the template repository,
// classifies the target against it and applies the result.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/schaermu/wfsync/internal/config"
	"github.com/schaermu/wfsync/internal/git"
	"github.com/schaermu/wfsync/internal/reconcile"
)

// Mode selects between a first installation and an update
type Mode int

const (
	ModeInstall Mode = iota
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "install"
}

var (
	// ErrNotDirectory is returned when the target exists but is not a directory
	ErrNotDirectory = errors.New("target is not a directory")
	// ErrNoInstallation is returned by update when the target has no installation
	ErrNoInstallation = errors.New("no existing installation found; run install first")
)

// Options are the per-run settings chosen on the command line
type Options struct {
	Target string
	Force  bool
	DryRun bool
}

// Result describes a finished run
type Result struct {
	Target  string
	Commit  string
	Report  *reconcile.Report
	Outcome *reconcile.Outcome
}

// Reporter presents a run to the user
type Reporter interface {
	// Plan is called once the target has been classified
	Plan(mode Mode, report *reconcile.Report, opts Options)
	// Progress is called before files are copied and returns the observer
	// notified after each copy
	Progress(total int) reconcile.Observer
	// Done is called after the changes were applied
	Done(mode Mode, outcome *reconcile.Outcome, opts Options)
}

// NopReporter discards all output
type NopReporter struct{}

func (NopReporter) Plan(Mode, *reconcile.Report, Options) {}

func (NopReporter) Progress(int) reconcile.Observer { return nil }

func (NopReporter) Done(Mode, *reconcile.Outcome, Options) {}

// Engine orchestrates fetch, classification and installation
type Engine struct {
	cfg      *config.Config
	fetcher  git.Fetcher
	fs       afero.Fs
	reporter Reporter
	logger   *slog.Logger
}

// NewEngine creates a new sync engine. fs must address the same filesystem
// the fetcher clones into.
func NewEngine(cfg *config.Config, fetcher git.Fetcher, fs afero.Fs, reporter Reporter, logger *slog.Logger) *Engine {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		fs:       fs,
		reporter: reporter,
		logger:   logger,
	}
}

// Run executes one install or update against opts.Target
func (e *Engine) Run(ctx context.Context, mode Mode, opts Options) (*Result, error) {
	target, err := e.prepareTarget(mode, opts)
	if err != nil {
		return nil, err
	}
	opts.Target = target

	e.logger.Info("starting "+mode.String(),
		"repo", e.cfg.Repo.URL,
		"ref", e.cfg.Repo.Ref,
		"target", target,
		"force", opts.Force,
		"dry_run", opts.DryRun)

	// Fetch repository
	checkout, err := e.fetcher.Fetch(ctx, e.cfg.Repo.URL, e.cfg.Repo.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}
	defer func() {
		if err := checkout.Cleanup(); err != nil {
			e.logger.Warn("failed to remove temporary checkout", "dir", checkout.Root, "error", err)
		}
	}()
	e.logger.Info("repository fetched", "commit", checkout.Commit)

	source, err := checkout.Subtree(e.cfg.Repo.Subdir)
	if err != nil {
		return nil, err
	}
	m := e.cfg.Manifest()
	if err := git.Verify(e.fs, source, m); err != nil {
		return nil, err
	}

	// Only manifest entries are read; the rest of the subtree is never opened.
	rec := reconcile.NewEngine(e.fs,
		reconcile.WithLogger(e.logger),
		reconcile.WithWorkers(e.cfg.Install.Workers),
		reconcile.WithPathFilter(m.Contains),
	)

	report, err := rec.Classify(ctx, source, target)
	if err != nil {
		return nil, fmt.Errorf("failed to classify files: %w", err)
	}

	e.logger.Info("classified files",
		"new", report.Count(reconcile.StatusNew),
		"identical", report.Count(reconcile.StatusIdentical),
		"modified", report.Count(reconcile.StatusModified))
	e.reporter.Plan(mode, report, opts)

	if !opts.DryRun {
		total := report.Count(reconcile.StatusNew) + report.Count(reconcile.StatusUpdated)
		if opts.Force {
			total += report.Count(reconcile.StatusModified)
		}
		if observer := e.reporter.Progress(total); observer != nil {
			rec = reconcile.NewEngine(e.fs,
				reconcile.WithLogger(e.logger),
				reconcile.WithObserver(observer),
			)
		}
	}

	outcome, err := rec.Apply(ctx, source, target, report, reconcile.Policy{Force: opts.Force, DryRun: opts.DryRun})
	if err != nil {
		return nil, fmt.Errorf("failed to apply changes: %w", err)
	}

	e.logger.Info(mode.String()+" completed",
		"added", len(outcome.Added),
		"updated", len(outcome.Updated),
		"skipped", len(outcome.Skipped),
		"conflicts", len(outcome.Conflicted),
		"dry_run", outcome.DryRun)
	e.reporter.Done(mode, outcome, opts)

	return &Result{
		Target:  target,
		Commit:  checkout.Commit,
		Report:  report,
		Outcome: outcome,
	}, nil
}

// prepareTarget resolves the target directory and checks mode preconditions
func (e *Engine) prepareTarget(mode Mode, opts Options) (string, error) {
	target := opts.Target
	if target == "" {
		target = "."
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target: %w", err)
	}

	info, err := e.fs.Stat(target)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, target)
	case err == nil:
		// existing directory
	case mode == ModeUpdate:
		return "", fmt.Errorf("%w: %s", ErrNoInstallation, target)
	case opts.DryRun:
		e.logger.Debug("target does not exist, dry run leaves it absent", "target", target)
		return target, nil
	default:
		if err := e.fs.MkdirAll(target, 0755); err != nil {
			return "", fmt.Errorf("failed to create target directory: %w", err)
		}
		return target, nil
	}

	if mode == ModeUpdate && !e.cfg.Manifest().Installed(e.fs, target) {
		return "", fmt.Errorf("%w: %s", ErrNoInstallation, target)
	}
	return target, nil
}
