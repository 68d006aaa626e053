package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/wfsync/internal/config"
	"github.com/schaermu/wfsync/internal/git"
	"github.com/schaermu/wfsync/internal/reconcile"
	"github.com/schaermu/wfsync/internal/testutil"
)

var templateFiles = map[string]string{
	"CLAUDE.md":                   "# workflow\n",
	".claude/commands/plan.md":    "plan",
	".claude/settings.json":       "{}",
	".constitution/principles.md": "be kind",
	"README.md":                   "not installed",
}

// fakeFetcher implements git.Fetcher by materialising files in a temp checkout.
type fakeFetcher struct {
	files     map[string]string
	locked    []string
	err       error
	calls     int
	checkouts []*git.Checkout
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string) (*git.Checkout, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	root, err := os.MkdirTemp("", "wfsync-")
	if err != nil {
		return nil, err
	}
	c := &git.Checkout{Root: root, Dir: filepath.Join(root, "repo"), Commit: "abc123"}
	for rel, content := range f.files {
		path := filepath.Join(c.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, err
		}
	}
	for _, rel := range f.locked {
		if err := os.Chmod(filepath.Join(c.Dir, filepath.FromSlash(rel)), 0000); err != nil {
			return nil, err
		}
	}
	f.checkouts = append(f.checkouts, c)
	return c, nil
}

func dataFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for rel, content := range files {
		out["data/"+rel] = content
	}
	return out
}

// recordingReporter captures the Reporter calls of a run.
type recordingReporter struct {
	planned  *reconcile.Report
	total    int
	copied   []string
	outcome  *reconcile.Outcome
	progress bool
}

func (r *recordingReporter) Plan(_ Mode, report *reconcile.Report, _ Options) {
	r.planned = report
}

func (r *recordingReporter) Progress(total int) reconcile.Observer {
	r.progress = true
	r.total = total
	return reconcile.ObserverFunc(func(rec reconcile.FileRecord) {
		r.copied = append(r.copied, rec.Path)
	})
}

func (r *recordingReporter) Done(_ Mode, outcome *reconcile.Outcome, _ Options) {
	r.outcome = outcome
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, fetcher git.Fetcher, reporter Reporter) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Install.Workers = 2
	return NewEngine(cfg, fetcher, afero.NewOsFs(), reporter, testLogger())
}

func assertCleanedUp(t *testing.T, f *fakeFetcher) {
	t.Helper()
	for _, c := range f.checkouts {
		_, err := os.Stat(c.Root)
		assert.True(t, os.IsNotExist(err), "checkout %s was not removed", c.Root)
	}
}

func TestRun_InstallFresh(t *testing.T) {
	target := filepath.Join(t.TempDir(), "project")
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}
	reporter := &recordingReporter{}

	res, err := newTestEngine(t, fetcher, reporter).Run(context.Background(), ModeInstall, Options{Target: target})
	require.NoError(t, err)

	assert.Equal(t, "abc123", res.Commit)
	assert.Equal(t, target, res.Target)
	assert.Len(t, res.Outcome.Added, 4)
	assert.Empty(t, res.Outcome.Conflicted)

	got := testutil.ReadTree(t, afero.NewOsFs(), target)
	assert.Equal(t, "# workflow\n", got["CLAUDE.md"])
	assert.Equal(t, "be kind", got[".constitution/principles.md"])
	assert.NotContains(t, got, "README.md", "untracked files must not be installed")

	require.NotNil(t, reporter.planned)
	assert.Equal(t, 4, reporter.planned.Len())
	assert.Equal(t, 4, reporter.total)
	assert.ElementsMatch(t, res.Outcome.Added, reporter.copied)
	assert.Same(t, res.Outcome, reporter.outcome)
	assertCleanedUp(t, fetcher)
}

func TestRun_IgnoresUnreadableUntrackedFiles(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	target := t.TempDir()
	fetcher := &fakeFetcher{files: dataFiles(templateFiles), locked: []string{"data/README.md"}}

	res, err := newTestEngine(t, fetcher, nil).Run(context.Background(), ModeInstall, Options{Target: target})
	require.NoError(t, err)
	assert.Len(t, res.Outcome.Added, 4)
	assert.NotContains(t, testutil.ReadTree(t, afero.NewOsFs(), target), "README.md")
	assertCleanedUp(t, fetcher)
}

func TestRun_InstallDryRunLeavesTargetAbsent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "project")
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}
	reporter := &recordingReporter{}

	res, err := newTestEngine(t, fetcher, reporter).Run(context.Background(), ModeInstall, Options{Target: target, DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.Outcome.DryRun)
	assert.Len(t, res.Outcome.Added, 4)
	assert.False(t, reporter.progress, "no progress is reported for a dry run")

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err), "dry run must not create the target")
	assertCleanedUp(t, fetcher)
}

func TestRun_UpdateConflicts(t *testing.T) {
	target := t.TempDir()
	fs := afero.NewOsFs()
	testutil.WriteTree(t, fs, target, map[string]string{
		"CLAUDE.md":             "# my own notes\n",
		".claude/settings.json": "{}",
		".claude/local.md":      "mine",
	})
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}

	res, err := newTestEngine(t, fetcher, nil).Run(context.Background(), ModeUpdate, Options{Target: target})
	require.NoError(t, err)

	assert.Equal(t, []string{"CLAUDE.md"}, res.Outcome.Conflicted)
	assert.ElementsMatch(t, []string{".claude/commands/plan.md", ".constitution/principles.md"}, res.Outcome.Added)
	assert.Empty(t, res.Outcome.Updated)

	got := testutil.ReadTree(t, fs, target)
	assert.Equal(t, "# my own notes\n", got["CLAUDE.md"])
	assert.Equal(t, "mine", got[".claude/local.md"])
}

func TestRun_UpdateForce(t *testing.T) {
	target := t.TempDir()
	fs := afero.NewOsFs()
	testutil.WriteTree(t, fs, target, map[string]string{
		"CLAUDE.md":             "# my own notes\n",
		".claude/settings.json": "{}",
	})
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}
	reporter := &recordingReporter{}

	res, err := newTestEngine(t, fetcher, reporter).Run(context.Background(), ModeUpdate, Options{Target: target, Force: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"CLAUDE.md"}, res.Outcome.Updated)
	assert.Empty(t, res.Outcome.Conflicted)
	assert.Equal(t, 3, reporter.total)
	assert.Equal(t, "# workflow\n", testutil.ReadTree(t, fs, target)["CLAUDE.md"])
}

func TestRun_UpdateWithoutInstallation(t *testing.T) {
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}
	engine := newTestEngine(t, fetcher, nil)

	_, err := engine.Run(context.Background(), ModeUpdate, Options{Target: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoInstallation)

	_, err = engine.Run(context.Background(), ModeUpdate, Options{Target: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrNoInstallation)

	assert.Zero(t, fetcher.calls, "nothing is fetched when preconditions fail")
}

func TestRun_TargetIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}

	for _, mode := range []Mode{ModeInstall, ModeUpdate} {
		_, err := newTestEngine(t, fetcher, nil).Run(context.Background(), mode, Options{Target: file})
		assert.ErrorIs(t, err, ErrNotDirectory, mode.String())
	}
}

func TestRun_FetchError(t *testing.T) {
	fetchErr := &git.FetchError{Kind: git.KindNetwork, Msg: "network error"}
	fetcher := &fakeFetcher{err: fetchErr}

	_, err := newTestEngine(t, fetcher, nil).Run(context.Background(), ModeInstall, Options{Target: t.TempDir()})
	require.Error(t, err)
	assert.True(t, git.IsKind(err, git.KindNetwork))
}

func TestRun_MissingDataDirectory(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"README.md": "moved"}}

	_, err := newTestEngine(t, fetcher, nil).Run(context.Background(), ModeInstall, Options{Target: t.TempDir()})
	assert.True(t, git.IsKind(err, git.KindMissingSubtree), "got %v", err)
	assertCleanedUp(t, fetcher)
}

func TestRun_IncompleteTemplate(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"data/CLAUDE.md": "x"}}
	target := t.TempDir()

	_, err := newTestEngine(t, fetcher, nil).Run(context.Background(), ModeInstall, Options{Target: target})
	assert.True(t, git.IsKind(err, git.KindMissingSubtree), "got %v", err)
	assert.Empty(t, testutil.ReadTree(t, afero.NewOsFs(), target), "nothing is copied from an incomplete template")
	assertCleanedUp(t, fetcher)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}

	_, err := newTestEngine(t, fetcher, nil).Run(ctx, ModeInstall, Options{Target: t.TempDir()})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assertCleanedUp(t, fetcher)
}

func TestRun_SecondInstallIsNoop(t *testing.T) {
	target := t.TempDir()
	fetcher := &fakeFetcher{files: dataFiles(templateFiles)}
	engine := newTestEngine(t, fetcher, nil)

	_, err := engine.Run(context.Background(), ModeInstall, Options{Target: target})
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), ModeUpdate, Options{Target: target})
	require.NoError(t, err)
	assert.Zero(t, res.Outcome.Changed())
	assert.Len(t, res.Outcome.Skipped, 4)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "install", ModeInstall.String())
	assert.Equal(t, "update", ModeUpdate.String())
}
