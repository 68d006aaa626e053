// Package display renders install and update runs for a terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"

	"github.com/schaermu/wfsync/internal/reconcile"
	"github.com/schaermu/wfsync/internal/sync"
)

// Renderer implements sync.Reporter on an io.Writer
type Renderer struct {
	w           io.Writer
	interactive bool
	styles      *lipgloss.Renderer
	bar         *progressbar.ProgressBar

	success *color.Color
	warning *color.Color
	errc    *color.Color
	bold    *color.Color
	dim     *color.Color
}

// NewRenderer creates a Renderer writing to w. Colors and the progress bar
// are only used when w is a terminal, noColor is false and NO_COLOR is unset.
func NewRenderer(w io.Writer, noColor bool) *Renderer {
	interactive := isTerminal(w)
	colored := interactive && !noColor && os.Getenv("NO_COLOR") == ""

	r := &Renderer{
		w:           w,
		interactive: interactive,
		styles:      lipgloss.NewRenderer(w),
		success:     color.New(color.FgGreen, color.Bold),
		warning:     color.New(color.FgYellow),
		errc:        color.New(color.FgRed),
		bold:        color.New(color.Bold),
		dim:         color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.success, r.warning, r.errc, r.bold, r.dim} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	if !colored {
		r.styles.SetColorProfile(termenv.Ascii)
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Plan prints the dry-run banner, the summary table and any conflicts
func (r *Renderer) Plan(mode sync.Mode, report *reconcile.Report, opts sync.Options) {
	if opts.DryRun {
		fmt.Fprintf(r.w, "\n%s\n\n", r.bold.Sprint("Dry run - no files will be modified"))
	}

	fmt.Fprintln(r.w, r.summary(mode, report, opts.Force))

	modified := report.Modified()
	if len(modified) > 0 && !opts.Force {
		fmt.Fprintf(r.w, "\n%s The following files have been modified:\n", r.warning.Sprint("Warning:"))
		for _, rec := range modified {
			fmt.Fprintf(r.w, "  • %s\n", rec.Path)
		}
		fmt.Fprintln(r.w, "\nUse --force to overwrite these files.")
	}
}

// summary renders the per-status table
func (r *Renderer) summary(mode sync.Mode, report *reconcile.Report, force bool) string {
	title := "Installation Summary"
	newDesc, identical, identicalDesc := "Files to be added", "Identical", "Files already up-to-date"
	if mode == sync.ModeUpdate {
		title = "Update Summary"
		newDesc, identical, identicalDesc = "New files to be added", "Up-to-date", "Files already current"
	}
	modifiedDesc := "Files changed by user"
	if force {
		modifiedDesc = "Files to be overwritten"
	}

	green := r.styles.NewStyle().Foreground(lipgloss.Color("2"))
	yellow := r.styles.NewStyle().Foreground(lipgloss.Color("3"))
	faint := r.styles.NewStyle().Faint(true)
	descStyles := []lipgloss.Style{green, faint, yellow}
	cell := r.styles.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.styles.NewStyle()).
		Headers("Status", "Count", "Description").
		Row("New", strconv.Itoa(report.Count(reconcile.StatusNew)), newDesc).
		Row(identical, strconv.Itoa(report.Count(reconcile.StatusIdentical)), identicalDesc).
		Row("Modified", strconv.Itoa(report.Count(reconcile.StatusModified)), modifiedDesc).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow || col == 0:
				return cell.Bold(true)
			case col == 1:
				return cell.Align(lipgloss.Right)
			case row >= 0 && row < len(descStyles):
				return descStyles[row].Padding(0, 1)
			}
			return cell
		})

	return r.styles.NewStyle().Bold(true).Render(title) + "\n" + t.Render()
}

// Progress starts a progress bar over the files about to be copied. It
// returns nil when the output is not a terminal.
func (r *Renderer) Progress(total int) reconcile.Observer {
	if !r.interactive || total == 0 {
		return nil
	}
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Copying files"),
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!color.NoColor),
	)
	return reconcile.ObserverFunc(func(reconcile.FileRecord) {
		_ = r.bar.Add(1)
	})
}

// Done prints the results of the run
func (r *Renderer) Done(mode sync.Mode, outcome *reconcile.Outcome, opts sync.Options) {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}

	if outcome.DryRun {
		fmt.Fprintf(r.w, "\n%s %d to add, %d to overwrite, %d to skip\n",
			r.bold.Sprint("Dry run complete:"),
			len(outcome.Added), len(outcome.Updated), len(outcome.Skipped))
		return
	}

	noun := "Installation"
	if mode == sync.ModeUpdate {
		noun = "Update"
	}
	fmt.Fprintf(r.w, "\n%s\n", r.success.Sprintf("✓ %s complete!", noun))

	if n := len(outcome.Added); n > 0 {
		added := "files"
		if mode == sync.ModeUpdate {
			added = "new files"
		}
		fmt.Fprintf(r.w, "\n%s\n", r.success.Sprintf("Added %d %s", n, added))
	}
	if n := len(outcome.Updated); n > 0 {
		fmt.Fprintln(r.w, r.warning.Sprintf("Updated %d files", n))
	}
	if n := len(outcome.Skipped); n > 0 {
		if mode == sync.ModeUpdate {
			fmt.Fprintln(r.w, r.dim.Sprintf("Skipped %d files (unchanged or user-modified)", n))
		} else {
			fmt.Fprintln(r.w, r.dim.Sprintf("Skipped %d files", n))
		}
	}

	if mode == sync.ModeUpdate {
		if outcome.HasConflicts() && !opts.Force {
			fmt.Fprintf(r.w, "\n%s\n", r.warning.Sprintf("Note: %d user-modified files were not updated.", len(outcome.Conflicted)))
			fmt.Fprintln(r.w, "Use --force to overwrite these files if needed.")
		}
		return
	}

	fmt.Fprintf(r.w, "\n%s\n", r.bold.Sprint("Next steps:"))
	fmt.Fprintln(r.w, "  1. Edit CLAUDE.md with your project-specific details")
	fmt.Fprintln(r.w, "  2. Review the workflow documentation in .constitution/")
	fmt.Fprintln(r.w, "  3. Start using /write-plan, /implement-plan, and /amend-plan commands")
}

// Error prints err the way every command failure is shown
func (r *Renderer) Error(err error) {
	fmt.Fprintf(r.w, "%s %v\n", r.errc.Sprint("Error:"), err)
}

// Hint prints a secondary line below an error
func (r *Renderer) Hint(msg string) {
	fmt.Fprintln(r.w, msg)
}
